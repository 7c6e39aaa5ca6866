// Package testutil provides shared test utilities, mocks, and fixtures
// for testing the room-web application.
package testutil

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"room-web/internal/backend"
	"room-web/internal/domain"
	"room-web/internal/session"
)

// Common test errors
var (
	ErrMockNotImplemented = errors.New("mock function not implemented")
	ErrMockUnavailable    = errors.New("mock: store unreachable")
)

// MockSessionRepository implements domain.SessionRepository for testing
type MockSessionRepository struct {
	mu sync.RWMutex

	// Function overrides
	CreateFunc        func(ctx context.Context, session *domain.Session) error
	GetByTokenFunc    func(ctx context.Context, token string) (*domain.Session, error)
	UpdateTokensFunc  func(ctx context.Context, session *domain.Session) error
	DeleteFunc        func(ctx context.Context, token string) error
	DeleteExpiredFunc func(ctx context.Context) (int64, error)

	// In-memory storage keyed by token
	Sessions map[string]*domain.Session
}

// NewMockSessionRepository creates a new MockSessionRepository with initialized maps
func NewMockSessionRepository() *MockSessionRepository {
	return &MockSessionRepository{
		Sessions: make(map[string]*domain.Session),
	}
}

// Put stores s directly, bypassing CreateFunc.
func (m *MockSessionRepository) Put(s *domain.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.Sessions[s.Token] = &cp
}

// Has reports whether a session with token is stored.
func (m *MockSessionRepository) Has(token string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.Sessions[token]
	return ok
}

func (m *MockSessionRepository) Create(ctx context.Context, s *domain.Session) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, s)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.Sessions[s.Token]; ok {
		return domain.ErrSessionExists
	}
	cp := *s
	m.Sessions[s.Token] = &cp
	return nil
}

func (m *MockSessionRepository) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	if m.GetByTokenFunc != nil {
		return m.GetByTokenFunc(ctx, token)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.Sessions[token]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if time.Now().After(s.ExpiresAt) {
		return nil, domain.ErrSessionExpired
	}
	cp := *s
	return &cp, nil
}

func (m *MockSessionRepository) UpdateTokens(ctx context.Context, s *domain.Session) error {
	if m.UpdateTokensFunc != nil {
		return m.UpdateTokensFunc(ctx, s)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.Sessions[s.Token]; !ok {
		return domain.ErrSessionNotFound
	}
	cp := *s
	m.Sessions[s.Token] = &cp
	return nil
}

func (m *MockSessionRepository) Delete(ctx context.Context, token string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, token)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.Sessions[token]; !ok {
		return domain.ErrSessionNotFound
	}
	delete(m.Sessions, token)
	return nil
}

func (m *MockSessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	now := time.Now()
	for token, s := range m.Sessions {
		if now.After(s.ExpiresAt) {
			delete(m.Sessions, token)
			count++
		}
	}
	return count, nil
}

// MockAuthService implements session.AuthService for testing
type MockAuthService struct {
	SignInFunc  func(ctx context.Context, email, password string) (*backend.Tokens, error)
	SignUpFunc  func(ctx context.Context, email, password string) (*domain.User, *backend.Tokens, error)
	RefreshFunc func(ctx context.Context, refreshToken string) (*backend.Tokens, error)
	SignOutFunc func(ctx context.Context, accessToken string) error
	GetUserFunc func(ctx context.Context, accessToken string) (*domain.User, error)

	RefreshCalls atomic.Int32
	SignOutCalls atomic.Int32
}

func (m *MockAuthService) SignInWithPassword(ctx context.Context, email, password string) (*backend.Tokens, error) {
	if m.SignInFunc != nil {
		return m.SignInFunc(ctx, email, password)
	}
	return nil, ErrMockNotImplemented
}

func (m *MockAuthService) SignUp(ctx context.Context, email, password string) (*domain.User, *backend.Tokens, error) {
	if m.SignUpFunc != nil {
		return m.SignUpFunc(ctx, email, password)
	}
	return nil, nil, ErrMockNotImplemented
}

func (m *MockAuthService) Refresh(ctx context.Context, refreshToken string) (*backend.Tokens, error) {
	m.RefreshCalls.Add(1)
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, refreshToken)
	}
	return nil, ErrMockNotImplemented
}

func (m *MockAuthService) SignOut(ctx context.Context, accessToken string) error {
	m.SignOutCalls.Add(1)
	if m.SignOutFunc != nil {
		return m.SignOutFunc(ctx, accessToken)
	}
	return nil
}

func (m *MockAuthService) GetUser(ctx context.Context, accessToken string) (*domain.User, error) {
	if m.GetUserFunc != nil {
		return m.GetUserFunc(ctx, accessToken)
	}
	return nil, ErrMockNotImplemented
}

// MockListingService is an in-memory listings backend. Listings are
// returned in insertion order; Create appends.
type MockListingService struct {
	mu sync.Mutex

	ListFunc    func(ctx context.Context) ([]domain.Listing, error)
	CreateFunc  func(ctx context.Context, accessToken string, input domain.ListingInput) (*domain.Listing, error)
	ContactFunc func(ctx context.Context, accessToken string, req domain.ContactRequest) error

	Listings []domain.Listing
	Contacts []domain.ContactRequest

	ListCalls    atomic.Int32
	CreateCalls  atomic.Int32
	ContactCalls atomic.Int32
}

func (m *MockListingService) List(ctx context.Context) ([]domain.Listing, error) {
	m.ListCalls.Add(1)
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Listing{}, m.Listings...), nil
}

func (m *MockListingService) Get(ctx context.Context, id string) (*domain.Listing, error) {
	listings, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range listings {
		if listings[i].ID == id {
			return &listings[i], nil
		}
	}
	return nil, domain.ErrListingNotFound
}

func (m *MockListingService) Create(ctx context.Context, accessToken string, input domain.ListingInput) (*domain.Listing, error) {
	m.CreateCalls.Add(1)
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, accessToken, input)
	}
	if accessToken == "" {
		return nil, domain.ErrUnauthenticated
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	l := domain.Listing{
		ID:          nextID("listing"),
		Title:       input.Title,
		Description: input.Description,
		Price:       domain.Price(input.Price),
		Currency:    input.Currency,
		City:        input.City,
		District:    input.District,
		Type:        input.Type,
		Status:      domain.StatusAvailable,
	}
	m.Listings = append(m.Listings, l)
	return &l, nil
}

func (m *MockListingService) SendContactRequest(ctx context.Context, accessToken string, req domain.ContactRequest) error {
	m.ContactCalls.Add(1)
	if m.ContactFunc != nil {
		return m.ContactFunc(ctx, accessToken, req)
	}
	if accessToken == "" {
		return domain.ErrUnauthenticated
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Contacts = append(m.Contacts, req)
	return nil
}

// RecordingPublisher implements session.EventPublisher and keeps every
// event it receives.
type RecordingPublisher struct {
	mu     sync.Mutex
	Err    error
	events []session.Event
}

func (p *RecordingPublisher) Publish(ctx context.Context, e session.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.Err
}

// Events returns a copy of the recorded events.
func (p *RecordingPublisher) Events() []session.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]session.Event{}, p.events...)
}

// Types returns the recorded event types in order.
func (p *RecordingPublisher) Types() []session.EventType {
	events := p.Events()
	types := make([]session.EventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}
