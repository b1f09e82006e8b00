package intent

import (
	"github.com/pmezard/go-difflib/difflib"
)

// Ratio returns the difflib similarity of two strings compared rune by rune: 2*M/T,
// where M is the number of matched runes and T the total rune count of both strings.
func Ratio(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	return difflib.NewMatcher(runeStrings(a), runeStrings(b)).Ratio()
}

func runeStrings(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
