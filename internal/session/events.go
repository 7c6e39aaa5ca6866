package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"room-web/internal/domain"
)

// EventType names an auth-state transition.
type EventType string

const (
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
)

// Event is delivered to subscribers of a session. Key identifies the
// session without exposing its cookie token; User is nil after sign-out.
type Event struct {
	Type EventType    `json:"type"`
	Key  string       `json:"key"`
	User *domain.User `json:"user"`
	At   time.Time    `json:"at"`
}

// EventPublisher fans events out to subscribers, locally or across
// instances.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// Key derives the routing key for a session token.
func Key(sessionToken string) string {
	sum := sha256.Sum256([]byte(sessionToken))
	return hex.EncodeToString(sum[:16])
}
