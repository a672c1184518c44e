// Package maskedvalue centralizes detection of privacy-masked field values.
// Public availability and confirmation endpoints echo client data back in
// masked form ("j***@example.com", "AB***1", "P."), and a booking payload
// assembled from such an echo must never overwrite the real stored values.
package maskedvalue

import (
	"strings"
	"unicode/utf8"
)

// IsMasked reports whether a generic string value carries the mask
// character and therefore must not be persisted.
func IsMasked(v string) bool {
	return strings.Contains(v, "*")
}

// IsMaskedEmail reports whether an email value is masked.
func IsMaskedEmail(email string) bool {
	return IsMasked(email)
}

// MaskEmail obfuscates an email for public display: first character kept,
// rest of the local part starred, domain intact.
func MaskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return email
	}
	return email[:1] + "***" + email[at:]
}

// MaskPlate obfuscates a license plate, keeping the outer characters.
func MaskPlate(plate string) string {
	if len(plate) <= 4 {
		return plate
	}
	return plate[:2] + strings.Repeat("*", len(plate)-4) + plate[len(plate)-2:]
}

// MaskLastName reduces a last name to its initial plus a period, the form
// IsMaskedLastName recognizes on the way back in.
func MaskLastName(lastName string) string {
	if lastName == "" {
		return ""
	}
	r := []rune(lastName)
	return string(r[0]) + "."
}

// IsMaskedLastName reports whether an incoming last name is the masked
// abbreviation of the stored one: at most three characters, ending in a
// period, whose stem prefixes the current value ("P." vs "Pérez").
func IsMaskedLastName(incoming, current string) bool {
	if !strings.HasSuffix(incoming, ".") || utf8.RuneCountInString(incoming) > 3 {
		return false
	}
	stem := strings.TrimSuffix(incoming, ".")
	return strings.HasPrefix(current, stem)
}
