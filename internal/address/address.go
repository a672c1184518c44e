// Package address parses free-form street addresses coming from the chat
// channel into structured components. The commune heuristic (longest known
// commune name suffixing the text) is a compatibility shim for clients that
// can't send a commune id; structured callers should pass the id directly.
package address

import (
	"regexp"
	"sort"
	"strings"

	"github.com/revitek/scheduling-engine/internal/models"
)

// Parsed is the structured form of a free-text address.
type Parsed struct {
	Street     string
	Number     string
	Complement string
	Commune    *models.Commune
}

// streetNumber captures the text before the first whitespace-preceded digit
// run as the street, the digits as the number, and the remainder as
// complement.
var streetNumber = regexp.MustCompile(`^(.+?)\s+(\d+)(.*)$`)

// Parse splits text like "Av. Vicuña Mackenna 4927, Depto 3108, Ñuñoa"
// into street, number, complement and commune. Communes are matched by the
// longest name suffixing the text, so "San Joaquín" wins over "San". A nil
// commune means no known commune terminated the text.
func Parse(text string, communes []models.Commune) Parsed {
	clean := strings.TrimSpace(text)

	sorted := make([]models.Commune, len(communes))
	copy(sorted, communes)
	sort.Slice(sorted, func(i, j int) bool {
		return len(sorted[i].Name) > len(sorted[j].Name)
	})

	var commune *models.Commune
	lower := strings.ToLower(clean)
	for i := range sorted {
		name := strings.ToLower(sorted[i].Name)
		if name != "" && strings.HasSuffix(lower, name) {
			commune = &sorted[i]
			clean = strings.TrimSpace(clean[:len(clean)-len(sorted[i].Name)])
			clean = strings.TrimSpace(strings.TrimSuffix(clean, ","))
			break
		}
	}

	parsed := Parsed{Commune: commune}
	if m := streetNumber.FindStringSubmatch(clean); m != nil {
		parsed.Street = strings.TrimSpace(m[1])
		parsed.Number = m[2]
		parsed.Complement = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(m[3]), ","))
	} else {
		parsed.Street = clean
		parsed.Number = "S/N"
	}
	return parsed
}

// Format renders a Parsed back into a single display line.
func Format(p Parsed) string {
	var b strings.Builder
	b.WriteString(p.Street)
	b.WriteString(" #")
	b.WriteString(p.Number)
	if p.Complement != "" {
		b.WriteString(", ")
		b.WriteString(p.Complement)
	}
	if p.Commune != nil {
		b.WriteString(", ")
		b.WriteString(p.Commune.Name)
	}
	return b.String()
}
