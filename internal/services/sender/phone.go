package sender

import (
	"regexp"
	"strings"
)

var (
	e164Pattern  = regexp.MustCompile(`^\+\d{6,15}$`)
	localPattern = regexp.MustCompile(`^\d{8}$`)
)

// NormalizePhone converts a raw spreadsheet phone value to canonical
// E.164 form. Accepted inputs are values already in international form
// and bare 8-digit local numbers, which get the default country code
// prepended. Everything else is invalid and excluded from the send set.
func NormalizePhone(raw, defaultCC string) (string, bool) {
	if strings.TrimSpace(raw) == "" {
		return "", false
	}

	// Strip everything except digits and the '+' sign
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '+' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if e164Pattern.MatchString(digits) {
		return digits, true
	}

	if localPattern.MatchString(digits) {
		return defaultCC + digits, true
	}

	return "", false
}
