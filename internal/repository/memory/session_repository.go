// Package memory is a process-local session store for development and
// single-instance deployments without Postgres.
package memory

import (
	"context"
	"sync"
	"time"

	"room-web/internal/domain"
)

// SessionRepository keeps sessions in a map keyed by cookie token.
type SessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
	now      func() time.Time
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		sessions: make(map[string]domain.Session),
		now:      time.Now,
	}
}

func (r *SessionRepository) Create(ctx context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[session.Token]; ok {
		return domain.ErrSessionExists
	}
	r.sessions[session.Token] = *session
	return nil
}

func (r *SessionRepository) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[token]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if !r.now().Before(s.ExpiresAt) {
		return nil, domain.ErrSessionExpired
	}
	return &s, nil
}

func (r *SessionRepository) UpdateTokens(ctx context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[session.Token]
	if !ok {
		return domain.ErrSessionNotFound
	}
	s.AccessToken = session.AccessToken
	s.RefreshToken = session.RefreshToken
	s.AccessExpiresAt = session.AccessExpiresAt
	s.User.Email = session.User.Email
	s.User.Name = session.User.Name
	s.UpdatedAt = session.UpdatedAt
	r.sessions[session.Token] = s
	return nil
}

func (r *SessionRepository) Delete(ctx context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, token)
	return nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var count int64
	for token, s := range r.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(r.sessions, token)
			count++
		}
	}
	return count, nil
}

// Len returns the number of stored sessions, expired ones included.
func (r *SessionRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
