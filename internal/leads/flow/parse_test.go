package flow

import "testing"

func TestParseYesNo(t *testing.T) {
	cases := map[string]struct{ yes, ok bool }{
		"1":     {true, true},
		" Sí ":  {true, true},
		"SI":    {true, true},
		"2":     {false, true},
		"No":    {false, true},
		"quizá": {false, false},
		"":      {false, false},
	}
	for in, want := range cases {
		yes, ok := parseYesNo(in)
		if yes != want.yes || ok != want.ok {
			t.Errorf("parseYesNo(%q) = %v,%v want %v,%v", in, yes, ok, want.yes, want.ok)
		}
	}
}

func TestParseChoice(t *testing.T) {
	if n, digits := parseChoice(" 2 "); n != 2 || !digits {
		t.Fatalf("expected 2, got %d %v", n, digits)
	}
	if _, digits := parseChoice("dos"); digits {
		t.Fatalf("words are not choices")
	}
	if _, digits := parseChoice("-1"); digits {
		t.Fatalf("signs are not choices")
	}
	if n, digits := parseChoice("99999999999999999999999"); n != -1 || !digits {
		t.Fatalf("overflow should be an out of range number, got %d %v", n, digits)
	}
}

func TestParseRating(t *testing.T) {
	stars, comment, ok := parseRating("4 muy puntual")
	if !ok || stars != 4 || comment != "muy puntual" {
		t.Fatalf("unexpected parse: %d %q %v", stars, comment, ok)
	}
	if stars, _, ok := parseRating("0"); !ok || stars != 0 {
		t.Fatalf("zero skips the rating")
	}
	for _, in := range []string{"6", "excelente", "", "-1"} {
		if _, _, ok := parseRating(in); ok {
			t.Errorf("parseRating(%q) should fail", in)
		}
	}
}

func TestIsGreeting(t *testing.T) {
	for _, in := range []string{"hola", "Hola", "  buenas tardes ", "Buenos días"} {
		if !isGreeting(in) {
			t.Errorf("%q should be a greeting", in)
		}
	}
	if isGreeting("hola necesito gasfiter") {
		t.Fatalf("greeting with a request is not a bare greeting")
	}
}

func TestProblemDescriptionTruncatesRunes(t *testing.T) {
	long := ""
	for i := 0; i < 200; i++ {
		long += "ñ"
	}
	if got := []rune(problemDescription(long)); len(got) != maxProblemLength {
		t.Fatalf("expected %d runes, got %d", maxProblemLength, len(got))
	}
}
