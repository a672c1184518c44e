package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIsUniqueAndURLSafe(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		tok, err := New()
		assert.NoError(t, err)
		assert.Len(t, tok, 22) // 16 bytes base64url without padding
		assert.False(t, seen[tok], "token collision")
		seen[tok] = true
		assert.NotContains(t, tok, "+")
		assert.NotContains(t, tok, "/")
		assert.NotContains(t, tok, "=")
	}
}
