package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

func GenerateCSRFToken() (string, error) {
	token, err := GenerateRandomString(32)
	if err != nil {
		return "", fmt.Errorf("failed to generate CSRF token: %w", err)
	}
	return token, nil
}

// GenerateRandomString returns length random bytes, base64url encoded.
func GenerateRandomString(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random string: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Equal compares two secrets in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
