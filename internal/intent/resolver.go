package intent

import (
	"context"
	"fmt"
	"sort"
	"time"

	"conectapro/platform/logger"
)

const (
	classifierWeight   = 0.6
	ruleWeight         = 0.4
	clarifyBelow       = 0.55
	clarifyGapBelow    = 0.08
	defaultClassifyTTL = 20 * time.Second
)

// Resolution methods.
const (
	MethodNone   = "none"
	MethodRules  = "rules"
	MethodHybrid = "hybrid"
)

// Entities are optional facts a classifier may extract alongside the intent.
type Entities struct {
	Comuna   string
	Device   string
	Urgency  string
	Symptoms []string
}

// Classification is what an external classifier returns.
type Classification struct {
	IntentID           string
	Confidence         float64
	Entities           Entities
	NeedsClarification bool
	ClarifyingQuestion string
	ClarifyingOptions  []string
}

// Classifier is the optional language-model boundary. Implementations must only
// return intent IDs from allowed; anything else is discarded by the Resolver.
type Classifier interface {
	Classify(ctx context.Context, text string, allowed []Definition) (Classification, error)
}

// Resolution is the outcome of resolving one customer message.
type Resolution struct {
	IntentID   string
	Confidence float64
	Entities   Entities
	Clarify    bool
	Question   string
	Options    []string
	Method     string
	Candidates []Candidate
}

// Resolved reports whether an intent was chosen without needing clarification.
func (r Resolution) Resolved() bool {
	return r.IntentID != "" && !r.Clarify
}

// Resolver blends rule scores with an optional classifier. It holds no mutable state
// and is shared by every conversation.
type Resolver struct {
	catalog    *Catalog
	scorer     *Scorer
	classifier Classifier
	timeout    time.Duration
	log        *logger.Logger
}

// ResolverOption customizes a Resolver.
type ResolverOption func(*Resolver)

// WithClassifier enables hybrid resolution.
func WithClassifier(c Classifier, timeout time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.classifier = c
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// NewResolver builds a Resolver over catalog.
func NewResolver(catalog *Catalog, log *logger.Logger, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		catalog: catalog,
		scorer:  NewScorer(catalog),
		timeout: defaultClassifyTTL,
		log:     log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Catalog returns the catalog the resolver was built with.
func (r *Resolver) Catalog() *Catalog {
	return r.catalog
}

// Scorer returns the rule scorer.
func (r *Resolver) Scorer() *Scorer {
	return r.scorer
}

// Resolve maps text to an intent, a clarification between two intents, or nothing.
// Classifier failures degrade to rules-only resolution.
func (r *Resolver) Resolve(ctx context.Context, text string) Resolution {
	llm, llmOK := r.classify(ctx, text)

	rules := r.scorer.TopIntents(text, DefaultTopK)
	combined := make(map[string]float64, len(rules)+1)
	ruleScore := make(map[string]float64, len(rules))
	for _, c := range rules {
		combined[c.IntentID] = c.Score
		ruleScore[c.IntentID] = c.Score
	}

	method := MethodRules
	var entities Entities
	if llmOK {
		method = MethodHybrid
		entities = llm.Entities
		if llm.IntentID != "" {
			combined[llm.IntentID] = classifierWeight*llm.Confidence + ruleWeight*ruleScore[llm.IntentID]
		}
	}

	if len(combined) == 0 {
		return Resolution{Method: MethodNone, Entities: entities}
	}

	ranked := make([]Candidate, 0, len(combined))
	for id, score := range combined {
		ranked = append(ranked, Candidate{IntentID: id, Score: score})
	}
	sort.Slice(ranked, func(a, b int) bool {
		if ranked[a].Score != ranked[b].Score {
			return ranked[a].Score > ranked[b].Score
		}
		return r.catalog.position(ranked[a].IntentID) < r.catalog.position(ranked[b].IntentID)
	})

	best := ranked[0]
	res := Resolution{
		IntentID:   best.IntentID,
		Confidence: best.Score,
		Entities:   entities,
		Method:     method,
		Candidates: ranked,
	}

	if len(ranked) > 1 {
		second := ranked[1]
		if best.Score < clarifyBelow || best.Score-second.Score < clarifyGapBelow {
			a, b := r.catalog.Label(best.IntentID), r.catalog.Label(second.IntentID)
			if a != "" && b != "" {
				res.Clarify = true
				res.Options = []string{a, b}
				res.Question = ClarificationQuestion(a, b)
			}
		}
	}
	return res
}

func (r *Resolver) classify(ctx context.Context, text string) (Classification, bool) {
	if r.classifier == nil {
		return Classification{}, false
	}
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	out, err := r.classifier.Classify(cctx, text, r.catalog.Definitions())
	if err != nil {
		if r.log != nil {
			r.log.WithContext(ctx).Warn("intent classifier unavailable; using rules only", "error", err)
		}
		return Classification{}, false
	}
	if out.IntentID != "" && !r.catalog.Has(out.IntentID) {
		if r.log != nil {
			r.log.WithContext(ctx).Warn("classifier returned intent outside allowlist", "intentId", out.IntentID)
		}
		out.IntentID = ""
	}
	out.Confidence = clamp01(out.Confidence)
	return out, true
}

// ClarificationQuestion renders the two-option question sent to the customer.
func ClarificationQuestion(a, b string) string {
	return fmt.Sprintf("Para ayudarte mejor, ¿cuál de estas opciones se parece más a lo que necesitas?\n1) %s\n2) %s\nResponde 1 o 2.", a, b)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
