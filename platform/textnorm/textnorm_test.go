package textnorm

import "testing"

func TestFold(t *testing.T) {
	cases := []struct {
		input    string
		expected string
	}{
		{input: "  Kinesiólogo   a DOMICILIO ", expected: "kinesiologo a domicilio"},
		{input: "Gasfitería\tURGENTE\n", expected: "gasfiteria urgente"},
		{input: "Ñuñoa", expected: "nunoa"},
		{input: "", expected: ""},
	}

	for _, tc := range cases {
		if got := Fold(tc.input); got != tc.expected {
			t.Errorf("Fold(%q): expected %q, got %q", tc.input, tc.expected, got)
		}
	}
}
