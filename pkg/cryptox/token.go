package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const (
	sessionIDBytes = 32 // 43 base64url chars
	keyIDBytes     = 16 // 22 base64url chars
)

// randomString returns n random bytes encoded as unpadded base64url.
func randomString(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("random length must be positive, got %d", n)
	}

	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewSessionID returns an unguessable identifier for a browser session.
func NewSessionID() (string, error) { return randomString(sessionIDBytes) }

// NewKeyID returns a random kid for a cookie signing key.
func NewKeyID() (string, error) { return randomString(keyIDBytes) }
