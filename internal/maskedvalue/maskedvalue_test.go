package maskedvalue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMasked(t *testing.T) {
	assert.True(t, IsMasked("j***@example.com"))
	assert.True(t, IsMasked("AB**12"))
	assert.False(t, IsMasked("jane@example.com"))
	assert.False(t, IsMasked(""))
}

func TestIsMaskedLastName(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		current  string
		want     bool
	}{
		{"abbreviated with period matching stem", "P.", "Pérez", true},
		{"two letter stem", "Pé.", "Pérez", true},
		{"no period", "P", "Pérez", false},
		{"too long", "Pére.", "Pérez", false},
		{"stem does not prefix current", "G.", "Pérez", false},
		{"full replacement name", "González", "Pérez", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsMaskedLastName(tt.incoming, tt.current))
		})
	}
}
