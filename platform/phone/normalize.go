// Package phone normalizes phone numbers for storage and matching.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Numbers without a country code are assumed Indian.
const defaultRegion = "IN"

// NormalizeE164 returns the E.164 form of input. Unparseable or invalid
// numbers come back as the trimmed input so callers never lose what the
// prospect actually typed.
func NormalizeE164(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}
	number, err := phonenumbers.Parse(trimmed, defaultRegion)
	if err != nil || !phonenumbers.IsValidNumber(number) {
		return trimmed
	}
	return phonenumbers.Format(number, phonenumbers.E164)
}
