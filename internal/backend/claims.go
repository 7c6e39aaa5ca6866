package backend

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims are the fields of a remote access token this service reads.
type AccessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// ParseAccessClaims decodes the token without verifying its signature. The
// token came from the auth service over TLS and is only used to schedule
// refreshes; the data API still verifies it on every call.
func ParseAccessClaims(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}
	return claims, nil
}

// AccessExpiry returns the exp claim of token, or the zero time when the
// token carries none or cannot be decoded.
func AccessExpiry(token string) time.Time {
	claims, err := ParseAccessClaims(token)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
