package intent

import (
	"strings"
	"testing"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := NewCatalog([]Definition{
		{ID: "electricidad", Label: "Electricista", Aliases: []string{"electricista", "electrico"}, Keywords: []string{"enchufe", "sin luz", "tablero"}},
		{ID: "gasfiteria", Label: "Gasfíter", Aliases: []string{"gasfiter", "gasfitero", "plomero"}, Keywords: []string{"fuga", "calefont", "wc"}},
		{ID: "computacion", Label: "Soporte computacional", Aliases: []string{"informatico"}, Keywords: []string{"notebook", "no prende", "no funciona"}},
		{ID: "linea_blanca", Label: "Línea blanca", Aliases: []string{"linea blanca"}, Keywords: []string{"lavadora", "no prende", "no funciona"}},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return c
}

func TestScoreAliasAndKeywords(t *testing.T) {
	s := NewScorer(testCatalog(t))

	got := s.Score("Busco electricista", "electricidad")
	// alias contained: 3*1.2 = 3.6 over max(6, 1/6+6)
	want := 3.6 / (1.0/6 + 6)
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected %.6f, got %.6f", want, got)
	}

	if got := s.Score("se quemó el enchufe y el tablero", "electricidad"); got <= 0 {
		t.Fatalf("expected keyword hits to score, got %v", got)
	}
	if got := s.Score("el enchufado", "electricidad"); got != 0 {
		t.Fatalf("single-word keyword must match whole words only, got %v", got)
	}
	if got := s.Score("estoy sin luz", "electricidad"); got <= 0 {
		t.Fatalf("expected phrase keyword to score, got %v", got)
	}
	if got := s.Score("busco electricista", "gasfiteria"); got != 0 {
		t.Fatalf("unrelated intent should score zero, got %v", got)
	}
	if got := s.Score("", "electricidad"); got != 0 {
		t.Fatalf("empty text should score zero, got %v", got)
	}
}

func TestScoreFuzzyAlias(t *testing.T) {
	s := NewScorer(testCatalog(t))
	if got := s.Score("gasfitter", "gasfiteria"); got <= 0 {
		t.Fatalf("expected close spelling of alias to score, got %v", got)
	}
	if got := s.Score("gato", "gasfiteria"); got != 0 {
		t.Fatalf("expected distant word not to score, got %v", got)
	}
}

func TestScoreIsCappedAtOne(t *testing.T) {
	s := NewScorer(testCatalog(t))
	text := "gasfiter plomero gasfitero fuga calefont wc"
	if got := s.Score(text, "gasfiteria"); got != 1 {
		t.Fatalf("expected score capped at 1, got %v", got)
	}
}

func TestScoreMonotonicWhenAliasAppended(t *testing.T) {
	c := testCatalog(t)
	s := NewScorer(c)
	texts := []string{
		"",
		"hola",
		"gasfitr",
		"necesito ayuda con algo que no funciona en mi casa desde ayer en la noche y no se que hacer",
		"busco electricista",
		"electricista electricista",
		strings.Repeat("palabra ", 60),
		"se me cayó el tablero y el enchufe",
	}

	for _, d := range c.Definitions() {
		for _, base := range texts {
			before := s.Score(base, d.ID)
			for _, alias := range d.Aliases {
				after := s.Score(base+" "+alias, d.ID)
				if after+1e-12 < before {
					t.Errorf("%s: appending %q to %q lowered score %.4f -> %.4f", d.ID, alias, base, before, after)
				}
			}
		}
	}
}

func TestTopIntentsOrderingAndLimit(t *testing.T) {
	s := NewScorer(testCatalog(t))

	top := s.TopIntents("mi notebook no prende", 3)
	if len(top) != 2 {
		t.Fatalf("expected 2 candidates, got %+v", top)
	}
	if top[0].IntentID != "computacion" || top[1].IntentID != "linea_blanca" {
		t.Fatalf("unexpected order: %+v", top)
	}
	if top[0].Score <= top[1].Score {
		t.Fatalf("expected computacion to outscore linea_blanca: %+v", top)
	}

	tie := s.TopIntents("no funciona", 1)
	if len(tie) != 1 || tie[0].IntentID != "computacion" {
		t.Fatalf("expected catalog order to break ties, got %+v", tie)
	}

	if got := s.TopIntents("hola buenas", 3); len(got) != 0 {
		t.Fatalf("expected no candidates, got %+v", got)
	}
}

func TestRatio(t *testing.T) {
	if got := Ratio("abcd", "abcd"); got != 1 {
		t.Fatalf("identical strings: expected 1, got %v", got)
	}
	if got := Ratio("abcd", "wxyz"); got != 0 {
		t.Fatalf("disjoint strings: expected 0, got %v", got)
	}
	// 2*3/(4+3)
	if got := Ratio("gato", "gat"); got < 0.857 || got > 0.858 {
		t.Fatalf("expected ~0.857, got %v", got)
	}
}
