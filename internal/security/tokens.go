package security

import (
	"crypto/rand"
	"encoding/hex"
)

// TokenManager generates opaque random tokens. Session cookies and CSRF
// tokens both come from here and are verified by store lookup, not by
// signature.
type TokenManager struct {
	size int
}

// NewTokenManager creates a manager producing 32-byte tokens.
func NewTokenManager() *TokenManager {
	return &TokenManager{size: 32}
}

// Generate returns a hex-encoded random token (64 characters).
func (tm *TokenManager) Generate() (string, error) {
	randomBytes := make([]byte, tm.size)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(randomBytes), nil
}

// GeneratePair returns a session token and its CSRF token.
func (tm *TokenManager) GeneratePair() (sessionToken, csrfToken string, err error) {
	sessionToken, err = tm.Generate()
	if err != nil {
		return "", "", err
	}
	csrfToken, err = tm.Generate()
	if err != nil {
		return "", "", err
	}
	return sessionToken, csrfToken, nil
}
