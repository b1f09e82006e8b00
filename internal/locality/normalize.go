// Package locality canonicalizes free-text comuna names typed by customers
// and orders localities by geographic proximity.
package locality

import (
	"strings"
	"unicode"

	"conectapro/platform/textnorm"
)

// prefixes are stripped repeatedly, longest first, so "en la florida" and "en en conce" settle.
var prefixes = []string{"en la ", "en el ", "en "}

var defaultAliases = map[string]string{
	"conce":     "concepcion",
	"cpt":       "concepcion",
	"san pedro": "san pedro de la paz",
	"spdp":      "san pedro de la paz",
	"la":        "los angeles",
	"thno":      "talcahuano",
	"talc":      "talcahuano",
}

// Normalizer maps locality text to a canonical key. It is immutable after construction.
type Normalizer struct {
	aliases   map[string]string
	proximity map[string][]string
}

// NewNormalizer builds a Normalizer with the built-in alias table plus extra aliases.
// Extra entries override built-in ones with the same alias.
func NewNormalizer(extra map[string]string) *Normalizer {
	raw := make(map[string]string, len(defaultAliases)+len(extra))
	for k, v := range defaultAliases {
		raw[k] = v
	}
	for k, v := range extra {
		raw[k] = v
	}

	folded := make(map[string]string, len(raw))
	for k, v := range raw {
		key := stripPrefixes(Fold(k))
		value := stripPrefixes(Fold(v))
		if key == "" || value == "" {
			continue
		}
		folded[key] = value
	}

	// Collapse alias chains so every target is a fixed point of Key.
	aliases := make(map[string]string, len(folded))
	for k, v := range folded {
		target := v
		for range len(folded) {
			next, ok := folded[target]
			if !ok || next == target {
				break
			}
			target = next
		}
		if next, ok := folded[target]; ok && next != target {
			continue
		}
		aliases[k] = target
	}

	return &Normalizer{aliases: aliases, proximity: buildProximity()}
}

// Key returns the canonical lookup key for a locality: accent-folded, lower-cased,
// whitespace-collapsed, with leading "en"/"en la"/"en el" removed and known aliases applied.
// Key(Key(x)) == Key(x) for every x.
func (n *Normalizer) Key(text string) string {
	s := stripPrefixes(Fold(text))
	if canonical, ok := n.aliases[s]; ok {
		return canonical
	}
	return s
}

// Fold lower-cases, strips diacritics, collapses whitespace and trims edge punctuation.
func Fold(text string) string {
	return strings.TrimFunc(textnorm.Fold(text), isEdge)
}

func stripPrefixes(s string) string {
	for {
		stripped := false
		for _, p := range prefixes {
			if after, ok := strings.CutPrefix(s, p); ok {
				s = strings.TrimFunc(after, isEdge)
				stripped = true
				break
			}
		}
		if !stripped {
			return s
		}
	}
}

func isEdge(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsPunct(r)
}
