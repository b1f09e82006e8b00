package locality

import (
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
)

// Directory maps canonical keys to the display name stored with provider data.
type Directory struct {
	display map[string]string
	keys    []string
}

// NewDirectory builds a Directory from raw comuna names. When several names share a key,
// the alphabetically first one is used for display.
func (n *Normalizer) NewDirectory(names []string) Directory {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	display := make(map[string]string, len(sorted))
	for _, name := range sorted {
		trimmed := strings.TrimSpace(name)
		key := n.Key(trimmed)
		if key == "" {
			continue
		}
		if _, seen := display[key]; !seen {
			display[key] = trimmed
		}
	}

	keys := make([]string, 0, len(display))
	for k := range display {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return Directory{display: display, keys: keys}
}

// Has reports whether key is a known locality.
func (d Directory) Has(key string) bool {
	_, ok := d.display[key]
	return ok
}

// Display returns the stored name for key, or key itself when unknown.
func (d Directory) Display(key string) string {
	if name, ok := d.display[key]; ok {
		return name
	}
	return key
}

// Keys returns all known keys in sorted order.
func (d Directory) Keys() []string {
	return append([]string(nil), d.keys...)
}

// Len returns the number of known localities.
func (d Directory) Len() int {
	return len(d.keys)
}

// Match is the outcome of resolving locality text against a Directory.
type Match struct {
	Key     string
	Display string
	Known   bool
}

// Resolve returns the key and display name for text. Unknown keys fall back to the trimmed input
// for display, after one attempt at typo recovery against the known keys.
func (n *Normalizer) Resolve(text string, dir Directory) Match {
	key := n.Key(text)
	if dir.Has(key) {
		return Match{Key: key, Display: dir.Display(key), Known: true}
	}
	if guess, ok := closestKey(key, dir.keys); ok {
		return Match{Key: guess, Display: dir.Display(guess), Known: true}
	}
	return Match{Key: key, Display: strings.TrimSpace(text)}
}

// closestKey accepts a fuzzy subsequence match only when it is unambiguous and covers most of the target.
func closestKey(pattern string, keys []string) (string, bool) {
	if len(pattern) < 4 || len(keys) == 0 {
		return "", false
	}
	matches := fuzzy.Find(pattern, keys)
	if len(matches) == 0 {
		return "", false
	}
	best := matches[0]
	if len(matches) > 1 && matches[1].Score == best.Score {
		return "", false
	}
	if len(pattern)*10 < len(best.Str)*8 {
		return "", false
	}
	return best.Str, true
}

// Extract finds a known locality named after the last " en " in text, trying the longest
// word run first, so "gasfiter en talcahuano urgente" yields talcahuano.
func (n *Normalizer) Extract(text string, dir Directory) (Match, bool) {
	folded := " " + Fold(text)
	idx := strings.LastIndex(folded, " en ")
	if idx < 0 {
		return Match{}, false
	}
	words := strings.Fields(folded[idx+len(" en "):])
	for end := len(words); end > 0; end-- {
		candidate := strings.Join(words[:end], " ")
		key := n.Key(candidate)
		if dir.Has(key) {
			return Match{Key: key, Display: dir.Display(key), Known: true}, true
		}
	}
	return Match{}, false
}
