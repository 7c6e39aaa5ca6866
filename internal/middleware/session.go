package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"room-web/internal/domain"
	"room-web/internal/observability"
	"room-web/internal/view"
)

// SessionCookieName is the cookie holding the opaque session token.
const SessionCookieName = "session_id"

type contextKey string

const (
	tokenKey   contextKey = "session_token"
	sessionKey contextKey = "session"
)

// SessionResolver looks up the session behind a cookie token.
type SessionResolver interface {
	CurrentUser(ctx context.Context, sessionToken string) (*domain.Session, error)
}

type sessionState struct {
	session *domain.Session
	err     error
}

// SessionToken copies the session cookie into the request context. It
// does not hit the session store.
func SessionToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSessionToken(r.Context(), cookie.Value)))
	})
}

// ResolveSession looks the session up once and stores the result, which
// may be anonymous, for the handlers below it.
func ResolveSession(resolver SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := GetSessionToken(ctx)
			if token == "" {
				if cookie, err := r.Cookie(SessionCookieName); err == nil {
					token = cookie.Value
					ctx = WithSessionToken(ctx, token)
				}
			}

			sess, err := resolver.CurrentUser(ctx, token)
			ctx = context.WithValue(ctx, sessionKey, &sessionState{session: sess, err: err})
			if sess != nil {
				ctx = observability.WithSession(ctx, sess.ID, sess.User.ID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSession lets only signed-in visitors through. Browsers are sent
// to the login page, API callers get a 401, and a failed lookup is a 503.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state, _ := r.Context().Value(sessionKey).(*sessionState)
		if state == nil {
			writeError(w, r, http.StatusInternalServerError, "Session not resolved")
			return
		}

		if state.err != nil {
			observability.FromContext(r.Context()).Warn("session lookup failed")
			if errors.Is(state.err, domain.ErrSessionUnavailable) {
				writeError(w, r, http.StatusServiceUnavailable, "Session unavailable")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "Session lookup failed")
			return
		}

		if !state.session.Authenticated() {
			if isAPIRequest(r) {
				writeError(w, r, http.StatusUnauthorized, "Not authenticated")
				return
			}
			http.Redirect(w, r, view.LoginURL(returnPath(r)), http.StatusSeeOther)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// returnPath is where to come back after signing in. Form posts return to
// the page the form was on.
func returnPath(r *http.Request) string {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return r.URL.RequestURI()
	}
	ref, err := url.Parse(r.Referer())
	if err != nil || ref.Host != r.Host {
		return ""
	}
	return ref.RequestURI()
}

func GetSessionToken(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey).(string)
	return token
}

// GetSession returns the resolved session when the visitor is signed in.
func GetSession(ctx context.Context) (*domain.Session, bool) {
	state, ok := ctx.Value(sessionKey).(*sessionState)
	if !ok || state.err != nil || !state.session.Authenticated() {
		return nil, false
	}
	return state.session, true
}

// GetSessionResult returns the raw lookup result stored by ResolveSession.
func GetSessionResult(ctx context.Context) (*domain.Session, error) {
	state, ok := ctx.Value(sessionKey).(*sessionState)
	if !ok {
		return nil, nil
	}
	return state.session, state.err
}

func WithSessionToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

func WithSession(ctx context.Context, session *domain.Session) context.Context {
	ctx = context.WithValue(ctx, sessionKey, &sessionState{session: session})
	if session != nil {
		ctx = WithSessionToken(ctx, session.Token)
	}
	return ctx
}

func isAPIRequest(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/") ||
		strings.HasPrefix(r.URL.Path, "/ws/") ||
		strings.Contains(r.Header.Get("Accept"), "application/json")
}

// writeError answers API callers with a JSON body and browsers with text.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	if isAPIRequest(r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
		return
	}
	http.Error(w, message, status)
}
