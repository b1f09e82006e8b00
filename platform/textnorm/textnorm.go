// Package textnorm holds the text folding shared by intent scoring and locality lookup.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lower-cases text, removes diacritics and collapses runs of whitespace to one space.
func Fold(text string) string {
	s := strings.ToLower(text)
	s = RemoveAccents(s)
	return strings.Join(strings.Fields(s), " ")
}

// RemoveAccents strips combining marks after canonical decomposition, so "ñ" becomes "n".
func RemoveAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Words splits folded text on whitespace.
func Words(s string) []string {
	return strings.Fields(s)
}
