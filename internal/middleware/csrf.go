package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

// CSRF validates the synchronizer token stored on the session for every
// state-changing request. It must run after ResolveSession.
//
// Token sources (checked in order):
// - Form field: csrf_token
// - Header: X-CSRF-Token
// - Header: X-XSRF-Token (alternate)
func CSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isSafeMethod(r.Method) || isExemptPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		session, ok := GetSession(r.Context())
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "Not authenticated")
			return
		}

		submitted := extractCSRFToken(r)
		if submitted == "" {
			logCSRFFailure(r, session.User.ID, "missing token")
			writeError(w, r, http.StatusForbidden, "Forbidden")
			return
		}

		if subtle.ConstantTimeCompare([]byte(session.CSRFToken), []byte(submitted)) != 1 {
			logCSRFFailure(r, session.User.ID, "invalid token")
			writeError(w, r, http.StatusForbidden, "Forbidden")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// CSRFIfSession applies CSRF only when ResolveSession found a live session.
// Anonymous requests pass through, which lets a stale cookie still reach
// sign-out.
func CSRFIfSession(next http.Handler) http.Handler {
	protected := CSRF(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetSession(r.Context()); !ok {
			next.ServeHTTP(w, r)
			return
		}
		protected.ServeHTTP(w, r)
	})
}

func isSafeMethod(method string) bool {
	return method == http.MethodGet ||
		method == http.MethodHead ||
		method == http.MethodOptions
}

func isExemptPath(path string) bool {
	for _, prefix := range []string{"/health", "/metrics", "/ws/"} {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func extractCSRFToken(r *http.Request) string {
	if token := r.FormValue("csrf_token"); token != "" {
		return token
	}
	if token := r.Header.Get("X-CSRF-Token"); token != "" {
		return token
	}
	return r.Header.Get("X-XSRF-Token")
}

func logCSRFFailure(r *http.Request, userID, reason string) {
	slog.Warn("CSRF validation failed",
		slog.String("user_id", userID),
		slog.String("reason", reason),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("remote_addr", r.RemoteAddr),
	)
}
