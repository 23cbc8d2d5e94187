package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// SessionTokenBytes is the entropy of a session id (256 bits)
const SessionTokenBytes = 32

// GenerateOpaqueToken returns n random bytes from crypto/rand, hex encoded
func GenerateOpaqueToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
