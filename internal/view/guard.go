package view

import (
	"sync"

	"room-web/internal/domain"
	"room-web/internal/observability"
)

// Action names a write a visitor can trigger.
type Action string

const (
	ActionCreateListing Action = "create_listing"
	ActionContact       Action = "contact"
)

// Guard admits one in-flight submission per session and action.
type Guard struct {
	mu       sync.Mutex
	inflight map[guardKey]struct{}
}

type guardKey struct {
	session string
	action  Action
}

func NewGuard() *Guard {
	return &Guard{inflight: make(map[guardKey]struct{})}
}

// Acquire returns domain.ErrSubmissionInFlight while an earlier submission
// of the same action is running. Call release when done.
func (g *Guard) Acquire(sessionID string, action Action) (release func(), err error) {
	key := guardKey{session: sessionID, action: action}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.inflight[key]; busy {
		observability.WriteActionsRejected.WithLabelValues(string(action), "in_flight").Inc()
		return nil, domain.ErrSubmissionInFlight
	}
	g.inflight[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.inflight, key)
			g.mu.Unlock()
		})
	}, nil
}
