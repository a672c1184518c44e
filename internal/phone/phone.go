// Package phone normalizes subscriber numbers to the canonical
// prefix+number form used for storage and for chat-channel identity
// matching. The country prefix is configuration, not hardcoded; the
// default deployment uses "56" (Chile), where mobile numbers are a "9"
// followed by eight digits.
package phone

import "strings"

// Normalize strips non-digits and prepends the country prefix when the
// input looks like a bare nine-digit mobile number ("9XXXXXXXX").
func Normalize(raw, countryPrefix string) string {
	digits := digitsOnly(raw)
	if digits == "" {
		return ""
	}
	if len(digits) == 9 && strings.HasPrefix(digits, "9") {
		return countryPrefix + digits
	}
	return digits
}

// Suffix returns the last n digits of raw, or "" when fewer digits exist.
// Matching on the eight-digit subscriber suffix tolerates inputs that
// arrive with or without the country prefix or the leading mobile "9".
func Suffix(raw string, n int) string {
	digits := digitsOnly(raw)
	if len(digits) < n {
		return ""
	}
	return digits[len(digits)-n:]
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
