package intent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"conectapro/platform/logger"
)

type fakeClassifier struct {
	out     Classification
	err     error
	calls   int
	allowed []Definition
	block   bool
}

func (f *fakeClassifier) Classify(ctx context.Context, text string, allowed []Definition) (Classification, error) {
	f.calls++
	f.allowed = allowed
	if f.block {
		<-ctx.Done()
		return Classification{}, ctx.Err()
	}
	return f.out, f.err
}

func TestResolveRulesOnlyConfident(t *testing.T) {
	r := NewResolver(testCatalog(t), logger.New("development"))

	res := r.Resolve(context.Background(), "busco electricista")
	if !res.Resolved() || res.IntentID != "electricidad" {
		t.Fatalf("expected electricidad, got %+v", res)
	}
	if res.Method != MethodRules {
		t.Fatalf("expected rules method, got %s", res.Method)
	}
}

func TestResolveAsksClarificationOnTie(t *testing.T) {
	r := NewResolver(testCatalog(t), logger.New("development"))

	res := r.Resolve(context.Background(), "no funciona")
	if !res.Clarify {
		t.Fatalf("expected clarification, got %+v", res)
	}
	if len(res.Options) != 2 || res.Options[0] != "Soporte computacional" || res.Options[1] != "Línea blanca" {
		t.Fatalf("unexpected options: %v", res.Options)
	}
	if res.IntentID != "computacion" {
		t.Fatalf("best candidate should still be reported, got %q", res.IntentID)
	}
	if !strings.Contains(res.Question, "1) Soporte computacional\n2) Línea blanca") {
		t.Fatalf("unexpected question: %q", res.Question)
	}
}

func TestResolveNothing(t *testing.T) {
	r := NewResolver(testCatalog(t), logger.New("development"))
	res := r.Resolve(context.Background(), "hola buenas")
	if res.IntentID != "" || res.Clarify || res.Method != MethodNone {
		t.Fatalf("expected empty resolution, got %+v", res)
	}
}

func TestResolveBlendsClassifier(t *testing.T) {
	fc := &fakeClassifier{out: Classification{
		IntentID:   "gasfiteria",
		Confidence: 0.95,
		Entities:   Entities{Comuna: "Talcahuano"},
	}}
	r := NewResolver(testCatalog(t), logger.New("development"), WithClassifier(fc, time.Second))

	res := r.Resolve(context.Background(), "se me rompió una cañería")
	if fc.calls != 1 || len(fc.allowed) != 4 {
		t.Fatalf("classifier should be called once with the allowlist, calls=%d allowed=%d", fc.calls, len(fc.allowed))
	}
	if !res.Resolved() || res.IntentID != "gasfiteria" {
		t.Fatalf("expected gasfiteria, got %+v", res)
	}
	// 0.6*0.95 + 0.4*0
	if res.Confidence < 0.569 || res.Confidence > 0.571 {
		t.Fatalf("unexpected blended confidence %v", res.Confidence)
	}
	if res.Entities.Comuna != "Talcahuano" || res.Method != MethodHybrid {
		t.Fatalf("expected hybrid resolution with entity, got %+v", res)
	}
}

func TestResolveDiscardsIntentOutsideAllowlist(t *testing.T) {
	fc := &fakeClassifier{out: Classification{IntentID: "astrologia", Confidence: 1}}
	r := NewResolver(testCatalog(t), logger.New("development"), WithClassifier(fc, time.Second))

	res := r.Resolve(context.Background(), "busco electricista")
	if res.IntentID != "electricidad" {
		t.Fatalf("expected rules to win, got %+v", res)
	}
	for _, c := range res.Candidates {
		if c.IntentID == "astrologia" {
			t.Fatalf("unknown intent leaked into candidates: %+v", res.Candidates)
		}
	}
}

func TestResolveFallsBackWhenClassifierFails(t *testing.T) {
	for _, fc := range []*fakeClassifier{
		{err: errors.New("upstream 500")},
		{block: true},
	} {
		r := NewResolver(testCatalog(t), logger.New("development"), WithClassifier(fc, 10*time.Millisecond))
		res := r.Resolve(context.Background(), "busco electricista")
		if res.IntentID != "electricidad" || res.Method != MethodRules {
			t.Fatalf("expected rules-only fallback, got %+v", res)
		}
	}
}

func TestResolveClassifierCanCreateAmbiguity(t *testing.T) {
	// rules: electricidad 3.6/6.1667 = 0.584; classifier gasfiteria 0.6*0.95 = 0.57
	fc := &fakeClassifier{out: Classification{IntentID: "gasfiteria", Confidence: 0.95}}
	r := NewResolver(testCatalog(t), logger.New("development"), WithClassifier(fc, time.Second))

	res := r.Resolve(context.Background(), "busco electricista")
	if !res.Clarify {
		t.Fatalf("expected clarification for close candidates, got %+v", res)
	}
	if res.Options[0] != "Electricista" || res.Options[1] != "Gasfíter" {
		t.Fatalf("unexpected options %v", res.Options)
	}
}
