// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const defaultRegion = "CL"

// NormalizeE164 formats a phone number to E.164 using the default region.
// If parsing fails, it returns the trimmed input.
func NormalizeE164(input string) string {
	return NormalizeE164In(input, defaultRegion)
}

// NormalizeE164In formats a phone number to E.164, resolving national numbers against region.
// WhatsApp addresses arrive as bare digits with country code, so a leading "+" is assumed for
// inputs made only of digits longer than a national number.
func NormalizeE164In(input, region string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}
	if region == "" {
		region = defaultRegion
	}

	candidate := trimmed
	if !strings.HasPrefix(candidate, "+") && isDigits(candidate) && len(candidate) > 9 {
		candidate = "+" + candidate
	}

	number, err := phonenumbers.Parse(candidate, region)
	if err != nil {
		return trimmed
	}

	if !phonenumbers.IsValidNumber(number) {
		return trimmed
	}

	return phonenumbers.Format(number, phonenumbers.E164)
}

// WhatsAppID returns the address form used by the WhatsApp Cloud API: E.164 without the plus sign.
func WhatsAppID(input, region string) string {
	return strings.TrimPrefix(NormalizeE164In(input, region), "+")
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
