package domain

import (
	"context"
	"errors"
	"time"
	"unicode"
	"unicode/utf8"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrSessionExists   = errors.New("session token already in use")

	// ErrSessionUnavailable means the session could not be resolved because
	// the store or the auth backend failed. It is distinct from "anonymous".
	ErrSessionUnavailable = errors.New("session unavailable")

	ErrEmailConfirmationRequired = errors.New("email confirmation required")
)

// User is the identity the remote auth service vouches for
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Initial returns the upper-cased first letter of the email, or "?".
func (u *User) Initial() string {
	if u == nil || u.Email == "" {
		return "?"
	}
	r, _ := utf8.DecodeRuneInString(u.Email)
	return string(unicode.ToUpper(r))
}

// Session is the server-side record behind a browser's session cookie.
// AccessToken is the bearer credential forwarded to the REST data API.
type Session struct {
	ID              string    `json:"id"`
	Token           string    `json:"-"`
	CSRFToken       string    `json:"-"`
	User            User      `json:"user"`
	AccessToken     string    `json:"-"`
	RefreshToken    string    `json:"-"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Authenticated reports whether s carries a usable identity.
func (s *Session) Authenticated() bool {
	return s != nil && s.User.ID != "" && s.AccessToken != ""
}

// SessionRepository defines the interface for session data access
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	GetByToken(ctx context.Context, token string) (*Session, error)
	UpdateTokens(ctx context.Context, session *Session) error
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context) (int64, error)
}
