package sanitize

import "testing"

func TestTextStripsMarkupAndCollapsesWhitespace(t *testing.T) {
	cases := map[string]string{
		"  se me cortó\n\nla luz  ":               "se me cortó la luz",
		"<b>urgente</b> fuga":                     "urgente fuga",
		"&lt;script&gt;alert(1)&lt;/script&gt;ok": "alert(1)ok",
		"tablero\x00 quemado":                     "tablero quemado",
	}
	for in, want := range cases {
		if got := Text(in); got != want {
			t.Errorf("Text(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTruncateCountsRunes(t *testing.T) {
	if got := Truncate("ñandú", 3); got != "ñan" {
		t.Fatalf("Truncate = %q", got)
	}
	if got := Truncate("corto", 10); got != "corto" {
		t.Fatalf("short input changed: %q", got)
	}
}
