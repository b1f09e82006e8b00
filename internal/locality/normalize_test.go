package locality

import (
	"reflect"
	"testing"
)

func TestKey(t *testing.T) {
	n := NewNormalizer(nil)
	cases := []struct {
		input    string
		expected string
	}{
		{input: "Concepción", expected: "concepcion"},
		{input: "  CONCE ", expected: "concepcion"},
		{input: "en conce", expected: "concepcion"},
		{input: "en la florida", expected: "florida"},
		{input: "En el   Hualpén.", expected: "hualpen"},
		{input: "San Pedro", expected: "san pedro de la paz"},
		{input: "spdp", expected: "san pedro de la paz"},
		{input: "thno", expected: "talcahuano"},
		{input: "LA", expected: "los angeles"},
		{input: "Los Ángeles", expected: "los angeles"},
		{input: "Ñuñoa", expected: "nunoa"},
		{input: "en en Tomé!", expected: "tome"},
		{input: "", expected: ""},
	}

	for _, tc := range cases {
		if got := n.Key(tc.input); got != tc.expected {
			t.Errorf("Key(%q): expected %q, got %q", tc.input, tc.expected, got)
		}
	}
}

func TestKeyIsIdempotent(t *testing.T) {
	n := NewNormalizer(map[string]string{"conce city": "Conce", "pto": "en Penco"})
	inputs := []string{
		"Concepción", "conce", "en conce", "en la la", "en en en", "¿en talc?", " San   Pedro ",
		"Los Ángeles", "en el en la Coronel", "conce city", "pto", "en", "la", "...", "Chillán Viejo",
	}
	for _, in := range inputs {
		once := n.Key(in)
		twice := n.Key(once)
		if once != twice {
			t.Errorf("Key not idempotent for %q: %q then %q", in, once, twice)
		}
	}
	if got := n.Key("conce city"); got != "concepcion" {
		t.Errorf("expected chained alias to reach concepcion, got %q", got)
	}
	if got := n.Key("pto"); got != "penco" {
		t.Errorf("expected alias target to be normalized, got %q", got)
	}
}

func TestOrderByProximity(t *testing.T) {
	n := NewNormalizer(nil)
	candidates := []string{"yumbel", "lota", "arauco", "talcahuano", "concepcion", "angol"}

	got := n.OrderByProximity("Concepción", candidates)
	want := []string{"talcahuano", "lota", "yumbel", "angol", "arauco"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("with reference: expected %v, got %v", want, got)
	}

	got = n.OrderByProximity("", candidates)
	want = []string{"angol", "arauco", "concepcion", "lota", "talcahuano", "yumbel"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("without reference: expected %v, got %v", want, got)
	}

	got = n.OrderByProximity("Temuco", candidates)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unknown reference should sort alphabetically: got %v", got)
	}
}

func TestResolve(t *testing.T) {
	n := NewNormalizer(nil)
	dir := n.NewDirectory([]string{"Concepción", "Talcahuano", "San Pedro de la Paz", "Concepcion"})

	m := n.Resolve("conce", dir)
	if !m.Known || m.Key != "concepcion" || m.Display != "Concepcion" {
		t.Fatalf("unexpected match for alias: %+v", m)
	}

	m = n.Resolve("talcahuno", dir)
	if !m.Known || m.Key != "talcahuano" {
		t.Fatalf("expected typo recovery to talcahuano, got %+v", m)
	}

	m = n.Resolve("  Valdivia ", dir)
	if m.Known || m.Key != "valdivia" || m.Display != "Valdivia" {
		t.Fatalf("unknown locality should keep trimmed input, got %+v", m)
	}
}

func TestExtract(t *testing.T) {
	n := NewNormalizer(nil)
	dir := n.NewDirectory([]string{"Talcahuano", "San Pedro de la Paz"})

	m, ok := n.Extract("Necesito un gasfiter en Talcahuano urgente", dir)
	if !ok || m.Key != "talcahuano" {
		t.Fatalf("expected talcahuano, got %+v ok=%v", m, ok)
	}

	m, ok = n.Extract("electricista en san pedro", dir)
	if !ok || m.Display != "San Pedro de la Paz" {
		t.Fatalf("expected alias expansion, got %+v ok=%v", m, ok)
	}

	if _, ok := n.Extract("abogado experto en herencias", dir); ok {
		t.Fatalf("expected no locality")
	}
	if _, ok := n.Extract("busco electricista", dir); ok {
		t.Fatalf("expected no locality")
	}
}
