package intent

import (
	"strings"

	"conectapro/platform/textnorm"
)

const serviceTokenSimilarity = 0.84

// MatchService is the fallback used when no intent resolves: it looks for a service label
// directly in the text, by containment in either direction or by a close token.
// Services are tried in the order given.
func MatchService(text string, services []string) (string, bool) {
	t := textnorm.Fold(text)
	if t == "" {
		return "", false
	}

	var tokens []string
	for _, tok := range strings.Fields(t) {
		if len([]rune(tok)) >= 4 {
			tokens = append(tokens, tok)
		}
	}

	for _, svc := range services {
		s := textnorm.Fold(svc)
		if s == "" {
			continue
		}
		if strings.Contains(t, s) || (len([]rune(t)) >= 3 && strings.Contains(s, t)) {
			return svc, true
		}
		for _, tok := range tokens {
			if strings.HasPrefix(s, tok) || strings.Contains(s, tok) || Ratio(tok, s) >= serviceTokenSimilarity {
				return svc, true
			}
		}
	}
	return "", false
}
