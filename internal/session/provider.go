// Package session owns the process-wide session store: it signs users in
// and out through the remote auth service, keeps their tokens fresh, and
// notifies subscribers of every auth-state transition.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"room-web/internal/backend"
	"room-web/internal/domain"
	"room-web/internal/observability"
	"room-web/internal/security"
)

// AuthService is the subset of the remote auth client the provider needs.
type AuthService interface {
	SignInWithPassword(ctx context.Context, email, password string) (*backend.Tokens, error)
	SignUp(ctx context.Context, email, password string) (*domain.User, *backend.Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (*backend.Tokens, error)
	SignOut(ctx context.Context, accessToken string) error
	GetUser(ctx context.Context, accessToken string) (*domain.User, error)
}

const (
	DefaultTTL             = 7 * 24 * time.Hour
	DefaultRefreshWindow   = time.Minute
	DefaultCleanupInterval = time.Hour

	refreshTimeout = 15 * time.Second
)

// Option configures a Provider.
type Option func(*Provider)

// WithPublisher routes events through p instead of the local broker.
func WithPublisher(p EventPublisher) Option {
	return func(pr *Provider) { pr.publisher = p }
}

// WithBroker makes the provider run b instead of a private broker, so a
// cross-instance publisher and consumer can share it.
func WithBroker(b *Broker) Option {
	return func(pr *Provider) {
		if b != nil {
			pr.broker = b
		}
	}
}

// WithTTL sets how long a session lives after sign-in.
func WithTTL(ttl time.Duration) Option {
	return func(pr *Provider) {
		if ttl > 0 {
			pr.ttl = ttl
		}
	}
}

// WithRefreshWindow sets how close to expiry an access token is refreshed.
func WithRefreshWindow(d time.Duration) Option {
	return func(pr *Provider) { pr.refreshWindow = d }
}

// WithCleanupInterval sets the expired-session sweep period.
func WithCleanupInterval(d time.Duration) Option {
	return func(pr *Provider) {
		if d > 0 {
			pr.cleanupInterval = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(pr *Provider) { pr.now = now }
}

// Provider is the single session authority of the process. Create it once
// in main, Start it, inject it, and Close it on shutdown.
type Provider struct {
	auth      AuthService
	repo      domain.SessionRepository
	tokens    *security.TokenManager
	broker    *Broker
	publisher EventPublisher
	refreshes singleflight.Group

	ttl             time.Duration
	refreshWindow   time.Duration
	cleanupInterval time.Duration
	now             func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewProvider(auth AuthService, repo domain.SessionRepository, opts ...Option) *Provider {
	p := &Provider{
		auth:            auth,
		repo:            repo,
		tokens:          security.NewTokenManager(),
		broker:          NewBroker(),
		ttl:             DefaultTTL,
		refreshWindow:   DefaultRefreshWindow,
		cleanupInterval: DefaultCleanupInterval,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.publisher == nil {
		p.publisher = p.broker
	}
	return p
}

// Broker returns the local broker. Cross-instance consumers deliver into it.
func (p *Provider) Broker() *Broker {
	return p.broker
}

// Start launches the broker loop and the expired-session sweep.
func (p *Provider) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		if err := p.broker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("session broker stopped", slog.String("error", err.Error()))
		}
	}()
	go func() {
		defer p.wg.Done()
		p.cleanupLoop(ctx)
	}()
}

// Close stops background work and waits for it.
func (p *Provider) Close() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Provider) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.CleanupExpired(ctx)
		}
	}
}

// CleanupExpired removes sessions past their expiry.
func (p *Provider) CleanupExpired(ctx context.Context) {
	count, err := p.repo.DeleteExpired(ctx)
	if err != nil {
		slog.Error("failed to cleanup expired sessions", slog.String("error", err.Error()))
		return
	}
	if count > 0 {
		observability.SessionsCleanedTotal.Add(float64(count))
		slog.Info("cleaned up expired sessions", slog.Int64("count", count))
	}
}

// SignIn authenticates with the remote service and opens a session.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, &domain.ValidationError{Message: "Email et mot de passe requis"}
	}

	tokens, err := p.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return p.open(ctx, tokens)
}

// SignUp registers an account. When the auth service wants the address
// confirmed first it returns ErrEmailConfirmationRequired and no session.
func (p *Provider) SignUp(ctx context.Context, email, password string) (*domain.Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, &domain.ValidationError{Message: "Email et mot de passe requis"}
	}

	_, tokens, err := p.auth.SignUp(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if tokens == nil {
		return nil, domain.ErrEmailConfirmationRequired
	}
	return p.open(ctx, tokens)
}

func (p *Provider) open(ctx context.Context, tokens *backend.Tokens) (*domain.Session, error) {
	sessionToken, csrfToken, err := p.tokens.GeneratePair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	now := p.now()
	sess := &domain.Session{
		ID:              uuid.NewString(),
		Token:           sessionToken,
		CSRFToken:       csrfToken,
		User:            tokens.User,
		AccessToken:     tokens.AccessToken,
		RefreshToken:    tokens.RefreshToken,
		AccessExpiresAt: tokens.ExpiresAt,
		ExpiresAt:       now.Add(p.ttl),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := p.repo.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("%w: create session: %v", domain.ErrSessionUnavailable, err)
	}

	p.emit(ctx, EventSignedIn, sess.Token, &sess.User)
	return sess, nil
}

// SignOut revokes the remote tokens and destroys the session. An unknown
// token is not an error.
func (p *Provider) SignOut(ctx context.Context, sessionToken string) error {
	if sessionToken == "" {
		return nil
	}

	sess, err := p.repo.GetByToken(ctx, sessionToken)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) || errors.Is(err, domain.ErrSessionExpired) {
			return nil
		}
		return fmt.Errorf("%w: %v", domain.ErrSessionUnavailable, err)
	}

	if err := p.auth.SignOut(ctx, sess.AccessToken); err != nil {
		observability.FromContext(ctx).Warn("remote sign-out failed", slog.String("error", err.Error()))
	}

	if err := p.repo.Delete(ctx, sessionToken); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return fmt.Errorf("%w: delete session: %v", domain.ErrSessionUnavailable, err)
	}

	p.emit(ctx, EventSignedOut, sessionToken, nil)
	return nil
}

// CurrentUser resolves the session behind sessionToken with a single store
// lookup, refreshing the access token when it is about to expire. It
// returns nil, nil for anonymous callers and ErrSessionUnavailable when the
// answer cannot be determined.
func (p *Provider) CurrentUser(ctx context.Context, sessionToken string) (*domain.Session, error) {
	if sessionToken == "" {
		return nil, nil
	}

	sess, err := p.repo.GetByToken(ctx, sessionToken)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) || errors.Is(err, domain.ErrSessionExpired) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrSessionUnavailable, err)
	}

	if !p.needsRefresh(sess) {
		return sess, nil
	}
	return p.refresh(ctx, sess)
}

func (p *Provider) needsRefresh(sess *domain.Session) bool {
	if sess.AccessExpiresAt.IsZero() {
		return false
	}
	return !p.now().Add(p.refreshWindow).Before(sess.AccessExpiresAt)
}

// refresh collapses concurrent refreshes of one session into a single
// remote call. The shared call runs detached from any one caller, so a
// caller that goes away only abandons its own wait.
func (p *Provider) refresh(ctx context.Context, sess *domain.Session) (*domain.Session, error) {
	ch := p.refreshes.DoChan(sess.Token, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		if sess.RefreshToken == "" {
			return nil, p.expire(fctx, sess)
		}

		tokens, err := p.auth.Refresh(fctx, sess.RefreshToken)
		if err != nil {
			if errors.Is(err, domain.ErrUnauthenticated) {
				return nil, p.expire(fctx, sess)
			}
			return nil, fmt.Errorf("%w: refresh: %v", domain.ErrSessionUnavailable, err)
		}

		updated := *sess
		updated.AccessToken = tokens.AccessToken
		if tokens.RefreshToken != "" {
			updated.RefreshToken = tokens.RefreshToken
		}
		updated.AccessExpiresAt = tokens.ExpiresAt
		if tokens.User.ID != "" {
			updated.User = tokens.User
		}
		updated.UpdatedAt = p.now()

		if err := p.repo.UpdateTokens(fctx, &updated); err != nil {
			return nil, fmt.Errorf("%w: store refreshed tokens: %v", domain.ErrSessionUnavailable, err)
		}

		p.emit(fctx, EventTokenRefreshed, updated.Token, &updated.User)
		return &updated, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Val == nil {
			return nil, nil
		}
		return res.Val.(*domain.Session), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: refresh: %v", domain.ErrSessionUnavailable, ctx.Err())
	}
}

// expire drops a session whose refresh was rejected.
func (p *Provider) expire(ctx context.Context, sess *domain.Session) error {
	if err := p.repo.Delete(ctx, sess.Token); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return fmt.Errorf("%w: delete session: %v", domain.ErrSessionUnavailable, err)
	}
	observability.FromContext(ctx).Info("session ended after rejected refresh", slog.String("session_id", sess.ID))
	p.emit(ctx, EventSignedOut, sess.Token, nil)
	return nil
}

// GetUser verifies the session's access token with the auth service.
func (p *Provider) GetUser(ctx context.Context, sessionToken string) (*domain.User, error) {
	sess, err := p.CurrentUser(ctx, sessionToken)
	if err != nil || sess == nil {
		return nil, err
	}

	user, err := p.auth.GetUser(ctx, sess.AccessToken)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthenticated) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrSessionUnavailable, err)
	}
	return user, nil
}

// Subscribe delivers every auth transition of sessionToken to fn until the
// returned function is called.
func (p *Provider) Subscribe(sessionToken string, fn func(Event)) (unsubscribe func()) {
	return p.broker.Subscribe(Key(sessionToken), fn)
}

func (p *Provider) emit(ctx context.Context, typ EventType, sessionToken string, user *domain.User) {
	event := Event{
		Type: typ,
		Key:  Key(sessionToken),
		User: user,
		At:   p.now(),
	}

	observability.AuthEventsTotal.WithLabelValues(string(typ)).Inc()
	if err := p.publisher.Publish(ctx, event); err != nil {
		observability.FromContext(ctx).Warn("failed to publish auth event",
			slog.String("type", string(typ)),
			slog.String("error", err.Error()))
	}
}
