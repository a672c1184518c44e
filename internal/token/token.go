// Package token generates the opaque confirmation credentials mailed or
// chatted to clients. Tokens come from crypto/rand (16 bytes, 128 bits of
// entropy) and are encoded URL-safe so they can ride in a link path.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const rawLen = 16

// New returns a fresh URL-safe confirmation token.
func New() (string, error) {
	buf := make([]byte, rawLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating confirmation token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
