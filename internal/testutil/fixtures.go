package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"room-web/internal/backend"
	"room-web/internal/domain"
)

// Counter for generating unique IDs
var idCounter atomic.Int64

// nextID generates a unique ID for test fixtures
func nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, idCounter.Add(1))
}

// AccessToken signs a JWT shaped like the auth service's access tokens.
// The signing key is irrelevant: the app never verifies it.
func AccessToken(sub, email string, exp time.Time) string {
	claims := backend.AccessClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-signing-key"))
	if err != nil {
		panic(err)
	}
	return token
}

// NewTestTokens returns a credential set for user valid for an hour.
func NewTestTokens(user domain.User) *backend.Tokens {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	return &backend.Tokens{
		AccessToken:  AccessToken(user.ID, user.Email, exp),
		RefreshToken: nextID("refresh"),
		ExpiresAt:    exp,
		User:         user,
	}
}

// SessionOptions allows customizing session fixture creation
type SessionOptions struct {
	ID              string
	Token           string
	CSRFToken       string
	User            domain.User
	AccessExpiresAt time.Time
	ExpiresAt       time.Time
	RefreshToken    string
}

// NewTestSession creates an authenticated session with sensible defaults
func NewTestSession(opts ...func(*SessionOptions)) *domain.Session {
	n := idCounter.Add(1)
	o := &SessionOptions{
		ID:              fmt.Sprintf("session-%d", n),
		Token:           fmt.Sprintf("token-%d", n),
		CSRFToken:       fmt.Sprintf("csrf-%d", n),
		User:            domain.User{ID: fmt.Sprintf("user-%d", n), Email: fmt.Sprintf("user%d@example.com", n)},
		AccessExpiresAt: time.Now().Add(time.Hour).Truncate(time.Second),
		ExpiresAt:       time.Now().Add(24 * time.Hour),
		RefreshToken:    fmt.Sprintf("refresh-%d", n),
	}

	for _, opt := range opts {
		opt(o)
	}

	now := time.Now()
	return &domain.Session{
		ID:              o.ID,
		Token:           o.Token,
		CSRFToken:       o.CSRFToken,
		User:            o.User,
		AccessToken:     AccessToken(o.User.ID, o.User.Email, o.AccessExpiresAt),
		RefreshToken:    o.RefreshToken,
		AccessExpiresAt: o.AccessExpiresAt,
		ExpiresAt:       o.ExpiresAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// WithToken sets the cookie token
func WithToken(token string) func(*SessionOptions) {
	return func(o *SessionOptions) {
		o.Token = token
	}
}

// WithCSRFToken sets the CSRF token
func WithCSRFToken(token string) func(*SessionOptions) {
	return func(o *SessionOptions) {
		o.CSRFToken = token
	}
}

// WithSessionUser sets the signed-in user
func WithSessionUser(user domain.User) func(*SessionOptions) {
	return func(o *SessionOptions) {
		o.User = user
	}
}

// WithAccessExpiresAt sets when the access token expires
func WithAccessExpiresAt(t time.Time) func(*SessionOptions) {
	return func(o *SessionOptions) {
		o.AccessExpiresAt = t
	}
}

// WithExpired makes the whole session expired
func WithExpired() func(*SessionOptions) {
	return func(o *SessionOptions) {
		o.ExpiresAt = time.Now().Add(-time.Hour)
	}
}

// WithoutRefreshToken clears the refresh token
func WithoutRefreshToken() func(*SessionOptions) {
	return func(o *SessionOptions) {
		o.RefreshToken = ""
	}
}

// ListingOptions allows customizing listing fixture creation
type ListingOptions struct {
	domain.Listing
}

// NewTestListing creates a listing with sensible defaults
func NewTestListing(opts ...func(*ListingOptions)) domain.Listing {
	o := &ListingOptions{Listing: domain.Listing{
		ID:          nextID("listing"),
		Title:       "Studio moderne centre-ville",
		Description: "Lumineux, proche du marché",
		Price:       150000,
		Currency:    domain.CurrencyXAF,
		City:        "Douala",
		District:    "Akwa",
		Type:        domain.TypeStudio,
		Status:      domain.StatusAvailable,
	}}

	for _, opt := range opts {
		opt(o)
	}
	return o.Listing
}

// WithListingID sets the listing ID
func WithListingID(id string) func(*ListingOptions) {
	return func(o *ListingOptions) {
		o.ID = id
	}
}

// WithTitle sets the listing title
func WithTitle(title string) func(*ListingOptions) {
	return func(o *ListingOptions) {
		o.Title = title
	}
}

// WithImages sets the listing photos
func WithImages(urls ...string) func(*ListingOptions) {
	return func(o *ListingOptions) {
		o.Images = make([]domain.Image, len(urls))
		for i, u := range urls {
			o.Images[i] = domain.Image{ImageURL: u}
		}
	}
}

// WithOwner sets the owner card
func WithOwner(email, phone string) func(*ListingOptions) {
	return func(o *ListingOptions) {
		o.Owner = &domain.Owner{Email: email, Phone: phone}
	}
}

// WithStatus sets the listing status
func WithStatus(status domain.ListingStatus) func(*ListingOptions) {
	return func(o *ListingOptions) {
		o.Status = status
	}
}

// NewTestListings creates count listings
func NewTestListings(count int) []domain.Listing {
	listings := make([]domain.Listing, count)
	for i := range listings {
		listings[i] = NewTestListing(WithTitle(fmt.Sprintf("Logement %d", i+1)))
	}
	return listings
}
