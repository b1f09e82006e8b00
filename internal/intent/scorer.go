package intent

import (
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	ahocorasick "github.com/cloudflare/ahocorasick"

	"conectapro/platform/textnorm"
)

const (
	phraseWeight      = 2.0
	wordWeight        = 1.0
	aliasContainHits  = 3.0
	aliasFuzzyHits    = 2.0
	aliasWeight       = 1.2
	aliasFuzzyMinimum = 0.82
	aliasFuzzyMaxLen  = 30
	minDenominator    = 6.0
	wordsPerDenomUnit = 6.0

	// DefaultTopK is how many rule candidates the hybrid resolver blends.
	DefaultTopK = 3
)

type termKind int

const (
	termWord termKind = iota
	termPhrase
	termAlias
)

type termRef struct {
	intent int
	kind   termKind
}

type scoredIntent struct {
	id      string
	aliases []string // folded, longest first
}

// Candidate is one scored intent.
type Candidate struct {
	IntentID string
	Score    float64
}

// Scorer computes deterministic keyword/alias scores for every catalog intent.
// It is safe for concurrent use.
type Scorer struct {
	catalog *Catalog
	intents []scoredIntent
	terms   []string
	refs    [][]termRef

	mu      sync.Mutex
	matcher *ahocorasick.Matcher
}

// NewScorer folds the catalog terms and builds one Aho-Corasick automaton over all of them.
func NewScorer(c *Catalog) *Scorer {
	s := &Scorer{catalog: c}
	index := make(map[string]int)
	add := func(term string, ref termRef) {
		i, ok := index[term]
		if !ok {
			i = len(s.terms)
			index[term] = i
			s.terms = append(s.terms, term)
			s.refs = append(s.refs, nil)
		}
		s.refs[i] = append(s.refs[i], ref)
	}

	for i, d := range c.intents {
		si := scoredIntent{id: d.ID}
		seen := make(map[string]bool)
		for _, a := range d.Aliases {
			folded := textnorm.Fold(a)
			if folded == "" || seen[folded] {
				continue
			}
			seen[folded] = true
			si.aliases = append(si.aliases, folded)
			add(folded, termRef{intent: i, kind: termAlias})
		}
		sort.SliceStable(si.aliases, func(a, b int) bool { return len(si.aliases[a]) > len(si.aliases[b]) })

		seenKW := make(map[string]bool)
		for _, k := range d.Keywords {
			folded := textnorm.Fold(k)
			if folded == "" || seenKW[folded] {
				continue
			}
			seenKW[folded] = true
			kind := termWord
			if strings.Contains(folded, " ") {
				kind = termPhrase
			}
			add(folded, termRef{intent: i, kind: kind})
		}
		s.intents = append(s.intents, si)
	}

	if len(s.terms) > 0 {
		s.matcher = ahocorasick.NewStringMatcher(s.terms)
	}
	return s
}

type accumulator struct {
	keyword   float64
	contained map[string]bool
}

// scoreAll returns the score of every intent for text, indexed like the catalog.
func (s *Scorer) scoreAll(text string) []float64 {
	t := textnorm.Fold(text)
	scores := make([]float64, len(s.intents))
	if t == "" {
		return scores
	}

	acc := make([]accumulator, len(s.intents))
	var tokens map[string]bool

	for _, hit := range s.match(t) {
		term := s.terms[hit]
		for _, ref := range s.refs[hit] {
			a := &acc[ref.intent]
			switch ref.kind {
			case termPhrase:
				a.keyword += phraseWeight
			case termWord:
				if tokens == nil {
					tokens = wordTokens(t)
				}
				if tokens[term] {
					a.keyword += wordWeight
				}
			case termAlias:
				if a.contained == nil {
					a.contained = make(map[string]bool)
				}
				a.contained[term] = true
			}
		}
	}

	for i, si := range s.intents {
		a := acc[i]
		residual := t
		aliasHits := 0.0
		for _, alias := range si.aliases {
			if a.contained[alias] {
				aliasHits += aliasContainHits
				residual = strings.ReplaceAll(residual, alias, " ")
			}
		}
		residual = strings.Join(strings.Fields(residual), " ")

		for _, alias := range si.aliases {
			if a.contained[alias] || len(alias) > aliasFuzzyMaxLen || !couldBeSimilar(residual, alias) {
				continue
			}
			if Ratio(residual, alias) >= aliasFuzzyMinimum {
				aliasHits += aliasFuzzyHits
			}
		}

		raw := a.keyword*1.0 + aliasHits*aliasWeight
		if raw == 0 {
			continue
		}
		words := float64(len(strings.Fields(residual)))
		denom := math.Max(minDenominator, words/wordsPerDenomUnit+minDenominator)
		scores[i] = math.Min(1.0, raw/denom)
	}
	return scores
}

func (s *Scorer) match(t string) []int {
	if s.matcher == nil {
		return nil
	}
	s.mu.Lock()
	hits := s.matcher.Match([]byte(t))
	s.mu.Unlock()

	seen := make(map[int]bool, len(hits))
	out := make([]int, 0, len(hits))
	for _, h := range hits {
		if h < 0 || h >= len(s.terms) || seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, h)
	}
	return out
}

// Score returns the rule score in [0,1] of a single intent.
func (s *Scorer) Score(text, intentID string) float64 {
	i, ok := s.catalog.byID[intentID]
	if !ok {
		return 0
	}
	return s.scoreAll(text)[i]
}

// TopIntents returns up to k intents with a positive score, highest first.
// Equal scores keep catalog order.
func (s *Scorer) TopIntents(text string, k int) []Candidate {
	if k <= 0 {
		k = DefaultTopK
	}
	scores := s.scoreAll(text)
	out := make([]Candidate, 0, len(scores))
	for i, score := range scores {
		if score > 0 {
			out = append(out, Candidate{IntentID: s.intents[i].id, Score: score})
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// wordTokens splits on anything that is not a letter, digit or underscore.
func wordTokens(t string) map[string]bool {
	fields := strings.FieldsFunc(t, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	})
	tokens := make(map[string]bool, len(fields))
	for _, f := range fields {
		tokens[f] = true
	}
	return tokens
}

// couldBeSimilar is the length upper bound of Ratio: 2*min/(a+b).
func couldBeSimilar(a, b string) bool {
	la, lb := len([]rune(a)), len([]rune(b))
	if la == 0 || lb == 0 {
		return false
	}
	return 2*float64(min(la, lb))/float64(la+lb) >= aliasFuzzyMinimum
}
