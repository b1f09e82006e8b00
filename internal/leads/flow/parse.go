package flow

import (
	"strconv"
	"strings"

	"conectapro/platform/sanitize"
	"conectapro/platform/textnorm"
)

const maxProblemLength = 160

var greetings = map[string]struct{}{
	"hola":          {},
	"hola!":         {},
	"buenas":        {},
	"buenos dias":   {},
	"buenas tardes": {},
	"buenas noches": {},
	"hello":         {},
	"hi":            {},
}

func isGreeting(text string) bool {
	_, ok := greetings[textnorm.Fold(text)]
	return ok
}

// parseYesNo accepts 1/si/sí/s and 2/no/n.
func parseYesNo(text string) (yes bool, ok bool) {
	switch textnorm.Fold(text) {
	case "1", "si", "s":
		return true, true
	case "2", "no", "n":
		return false, true
	}
	return false, false
}

func pickOneOrTwo(text string) (int, bool) {
	switch strings.TrimSpace(text) {
	case "1":
		return 1, true
	case "2":
		return 2, true
	}
	return 0, false
}

// parseChoice reads a positive offer number. digits is false when the reply is not numeric.
func parseChoice(text string) (n int, digits bool) {
	t := strings.TrimSpace(text)
	if t == "" {
		return 0, false
	}
	for _, r := range t {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(t)
	if err != nil {
		return -1, true
	}
	return n, true
}

// parseRating reads "N [comment]" with N between 0 and 5.
func parseRating(text string) (stars int, comment string, ok bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0, "", false
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 0 || n > 5 {
		return 0, "", false
	}
	return n, sanitize.Text(strings.Join(fields[1:], " ")), true
}

func problemDescription(text string) string {
	return sanitize.Truncate(sanitize.Text(text), maxProblemLength)
}
