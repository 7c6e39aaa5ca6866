package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"room-web/internal/domain"
)

// Tokens is a credential set issued by the auth service.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         domain.User
}

// AuthClient talks to a GoTrue-style auth service.
type AuthClient struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
}

// NewAuthClient creates a client for the auth service at baseURL.
func NewAuthClient(baseURL, anonKey string, timeout time.Duration) (*AuthClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" || strings.TrimSpace(anonKey) == "" {
		return nil, fmt.Errorf("%w: auth url and anon key are required", ErrMissingConfig)
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("%w: auth url: %v", ErrMissingConfig, err)
	}

	return &AuthClient{
		baseURL:    baseURL,
		anonKey:    anonKey,
		httpClient: newHTTPClient(timeout),
	}, nil
}

type authUser struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	UserMetadata struct {
		Name string `json:"name"`
	} `json:"user_metadata"`
}

func (u authUser) toDomain() domain.User {
	return domain.User{ID: u.ID, Email: u.Email, Name: u.UserMetadata.Name}
}

type tokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    int64     `json:"expires_at"`
	User         *authUser `json:"user"`
}

func (r *tokenResponse) tokens(now time.Time) *Tokens {
	t := &Tokens{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
	}
	if r.User != nil {
		t.User = r.User.toDomain()
	}

	switch {
	case r.ExpiresAt > 0:
		t.ExpiresAt = time.Unix(r.ExpiresAt, 0)
	case r.ExpiresIn > 0:
		t.ExpiresAt = now.Add(time.Duration(r.ExpiresIn) * time.Second)
	default:
		t.ExpiresAt = AccessExpiry(r.AccessToken)
	}

	if t.User.ID == "" {
		if claims, err := ParseAccessClaims(r.AccessToken); err == nil {
			t.User.ID = claims.Subject
			t.User.Email = claims.Email
		}
	}
	return t
}

func (c *AuthClient) headers(accessToken string) map[string]string {
	h := map[string]string{"apikey": c.anonKey}
	if accessToken != "" {
		h["Authorization"] = bearer(accessToken)
	}
	return h
}

func (c *AuthClient) tokenGrant(ctx context.Context, op, grant string, body any) (tokens *Tokens, err error) {
	start := time.Now()
	defer func() { observe(ctx, op, start, err) }()

	resp, err := do(ctx, c.httpClient, request{
		op:      op,
		method:  http.MethodPost,
		url:     c.baseURL + "/auth/v1/token?grant_type=" + grant,
		headers: c.headers(""),
		body:    body,
	})
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusOK {
		return nil, classifyAuth(op, resp)
	}

	var tr tokenResponse
	if err := json.Unmarshal(resp.body, &tr); err != nil {
		return nil, &domain.NetworkError{Op: op, Status: resp.status, Reason: "malformed token response", Err: err}
	}
	if tr.AccessToken == "" {
		return nil, &domain.NetworkError{Op: op, Status: resp.status, Reason: "token response without access token"}
	}
	return tr.tokens(time.Now()), nil
}

// SignInWithPassword exchanges credentials for tokens.
func (c *AuthClient) SignInWithPassword(ctx context.Context, email, password string) (*Tokens, error) {
	return c.tokenGrant(ctx, "auth_sign_in", "password", map[string]string{
		"email":    email,
		"password": password,
	})
}

// Refresh exchanges a refresh token for a new credential set.
func (c *AuthClient) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	return c.tokenGrant(ctx, "auth_refresh", "refresh_token", map[string]string{
		"refresh_token": refreshToken,
	})
}

// SignUp registers a new account. When the service requires email
// confirmation it answers with a bare user and tokens is nil.
func (c *AuthClient) SignUp(ctx context.Context, email, password string) (user *domain.User, tokens *Tokens, err error) {
	const op = "auth_sign_up"
	start := time.Now()
	defer func() { observe(ctx, op, start, err) }()

	resp, err := do(ctx, c.httpClient, request{
		op:      op,
		method:  http.MethodPost,
		url:     c.baseURL + "/auth/v1/signup",
		headers: c.headers(""),
		body:    map[string]string{"email": email, "password": password},
	})
	if err != nil {
		return nil, nil, err
	}
	if resp.status != http.StatusOK && resp.status != http.StatusCreated {
		return nil, nil, classifyAuth(op, resp)
	}

	var payload struct {
		tokenResponse
		authUser
	}
	if err := json.Unmarshal(resp.body, &payload); err != nil {
		return nil, nil, &domain.NetworkError{Op: op, Status: resp.status, Reason: "malformed signup response", Err: err}
	}

	if payload.AccessToken != "" {
		t := payload.tokenResponse.tokens(time.Now())
		return &t.User, t, nil
	}

	u := payload.authUser.toDomain()
	if payload.User != nil {
		u = payload.User.toDomain()
	}
	if u.Email == "" {
		u.Email = email
	}
	return &u, nil, nil
}

// SignOut revokes the refresh tokens behind accessToken.
func (c *AuthClient) SignOut(ctx context.Context, accessToken string) (err error) {
	const op = "auth_sign_out"
	start := time.Now()
	defer func() { observe(ctx, op, start, err) }()

	resp, err := do(ctx, c.httpClient, request{
		op:      op,
		method:  http.MethodPost,
		url:     c.baseURL + "/auth/v1/logout",
		headers: c.headers(accessToken),
	})
	if err != nil {
		return err
	}
	if resp.status != http.StatusNoContent && resp.status != http.StatusOK {
		return classifyAuth(op, resp)
	}
	return nil
}

// GetUser asks the auth service who accessToken belongs to.
func (c *AuthClient) GetUser(ctx context.Context, accessToken string) (user *domain.User, err error) {
	const op = "auth_get_user"
	start := time.Now()
	defer func() { observe(ctx, op, start, err) }()

	resp, err := do(ctx, c.httpClient, request{
		op:      op,
		method:  http.MethodGet,
		url:     c.baseURL + "/auth/v1/user",
		headers: c.headers(accessToken),
	})
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusOK {
		return nil, classifyAuth(op, resp)
	}

	var au authUser
	if err := json.Unmarshal(resp.body, &au); err != nil {
		return nil, &domain.NetworkError{Op: op, Status: resp.status, Reason: "malformed user response", Err: err}
	}
	u := au.toDomain()
	return &u, nil
}

// Health reports whether the auth service answers its health endpoint.
func (c *AuthClient) Health(ctx context.Context) error {
	resp, err := do(ctx, c.httpClient, request{
		op:      "auth_health",
		method:  http.MethodGet,
		url:     c.baseURL + "/auth/v1/health",
		headers: c.headers(""),
	})
	if err != nil {
		return err
	}
	if resp.status != http.StatusOK {
		return classify("auth_health", resp)
	}
	return nil
}

// classifyAuth treats the auth service's 400 "invalid_grant" answers as
// credential rejections rather than form validation failures.
func classifyAuth(op string, resp *response) error {
	err := classify(op, resp)
	if resp.status == http.StatusBadRequest && isGrantRejection(resp.body) {
		return &domain.AuthError{Status: resp.status, Message: errorMessage(resp.body)}
	}
	return err
}

func isGrantRejection(body []byte) bool {
	var payload struct {
		Error     string `json:"error"`
		ErrorCode string `json:"error_code"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return false
	}
	switch payload.Error {
	case "invalid_grant", "invalid_request":
		return true
	}
	switch payload.ErrorCode {
	case "invalid_credentials", "refresh_token_not_found", "refresh_token_already_used", "session_not_found":
		return true
	}
	return false
}
