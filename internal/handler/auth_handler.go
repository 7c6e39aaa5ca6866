package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"room-web/internal/domain"
	"room-web/internal/middleware"
	"room-web/internal/observability"
	"room-web/internal/view"
	"room-web/internal/web"
)

const (
	msgSignInFailed      = "Impossible de se connecter."
	msgSignUpFailed      = "Impossible de créer le compte."
	msgConfirmationSent  = "Compte créé. Vérifie ton email pour confirmer ton inscription, puis connecte-toi."
	msgSessionStoreError = "Service indisponible, réessayez plus tard."
)

// SessionService is the part of the session provider the auth pages use.
type SessionService interface {
	SignIn(ctx context.Context, email, password string) (*domain.Session, error)
	SignUp(ctx context.Context, email, password string) (*domain.Session, error)
	SignOut(ctx context.Context, sessionToken string) error
	CurrentUser(ctx context.Context, sessionToken string) (*domain.Session, error)
	GetUser(ctx context.Context, sessionToken string) (*domain.User, error)
}

// CookieOptions controls the session cookie.
type CookieOptions struct {
	Secure bool
	MaxAge time.Duration
}

// AuthHandler serves the home, login, sign-up, logout and dashboard pages.
type AuthHandler struct {
	sessions SessionService
	renderer Renderer
	cookies  CookieOptions
}

func NewAuthHandler(sessions SessionService, renderer Renderer, cookies CookieOptions) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		renderer: renderer,
		cookies:  cookies,
	}
}

func (h *AuthHandler) header(r *http.Request) view.Header {
	sess, err := h.sessions.CurrentUser(r.Context(), middleware.GetSessionToken(r.Context()))
	if err != nil {
		observability.FromContext(r.Context()).Warn("session lookup failed", slog.String("error", err.Error()))
	}
	return view.NewHeader(sess, err)
}

// Home greets anonymous visitors and sends signed-in users to the dashboard.
func (h *AuthHandler) Home(w http.ResponseWriter, r *http.Request) {
	header := h.header(r)
	if header.Authenticated() {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	h.renderer.Render(w, http.StatusOK, web.PageHome, view.HomePage{Header: header})
}

func (h *AuthHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	next := view.SafeNext(r.URL.Query().Get("next"))
	header := h.header(r)
	if header.Authenticated() {
		http.Redirect(w, r, next, http.StatusSeeOther)
		return
	}
	h.renderer.Render(w, http.StatusOK, web.PageLogin, view.AuthPage{Header: header, Next: next})
}

// Login opens a session and returns to the page that asked for it.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.Render(w, http.StatusBadRequest, web.PageLogin, view.AuthPage{Error: msgSignInFailed})
		return
	}

	email := strings.TrimSpace(r.PostFormValue("email"))
	next := view.SafeNext(r.PostFormValue("next"))

	sess, err := h.sessions.SignIn(r.Context(), email, r.PostFormValue("password"))
	if err != nil {
		observability.FromContext(r.Context()).Info("sign-in failed", slog.String("error", err.Error()))
		page := view.AuthPage{Email: email, Next: next, Error: authMessage(err, msgSignInFailed)}
		h.renderer.Render(w, statusFor(err), web.PageLogin, page)
		return
	}

	h.setCookie(w, sess)
	http.Redirect(w, r, next, http.StatusSeeOther)
}

func (h *AuthHandler) SignupForm(w http.ResponseWriter, r *http.Request) {
	header := h.header(r)
	if header.Authenticated() {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	h.renderer.Render(w, http.StatusOK, web.PageSignup, view.AuthPage{Header: header})
}

// Signup registers an account. When the address must be confirmed first
// no session exists yet and the login page explains what to do.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.Render(w, http.StatusBadRequest, web.PageSignup, view.AuthPage{Error: msgSignUpFailed})
		return
	}

	email := strings.TrimSpace(r.PostFormValue("email"))

	sess, err := h.sessions.SignUp(r.Context(), email, r.PostFormValue("password"))
	if errors.Is(err, domain.ErrEmailConfirmationRequired) {
		page := view.AuthPage{Email: email, Next: view.SafeNext(""), Notice: msgConfirmationSent}
		h.renderer.Render(w, http.StatusOK, web.PageLogin, page)
		return
	}
	if err != nil {
		observability.FromContext(r.Context()).Info("sign-up failed", slog.String("error", err.Error()))
		page := view.AuthPage{Email: email, Error: authMessage(err, msgSignUpFailed)}
		h.renderer.Render(w, statusFor(err), web.PageSignup, page)
		return
	}

	h.setCookie(w, sess)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// Logout ends the session. The cookie is cleared even when the store
// could not be reached.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := middleware.GetSessionToken(r.Context())
	if err := h.sessions.SignOut(r.Context(), token); err != nil {
		observability.FromContext(r.Context()).Warn("sign-out failed", slog.String("error", err.Error()))
	}

	h.clearCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Dashboard runs behind RequireSession and asks the auth service who the
// token belongs to. A token it no longer accepts ends the local session.
func (h *AuthHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.GetSession(r.Context())
	if !ok {
		http.Redirect(w, r, view.LoginURL("/dashboard"), http.StatusSeeOther)
		return
	}

	header := view.NewHeader(sess, nil)
	user, err := h.sessions.GetUser(r.Context(), sess.Token)
	switch {
	case err != nil:
		observability.FromContext(r.Context()).Warn("user verification failed", slog.String("error", err.Error()))
	case user == nil:
		if err := h.sessions.SignOut(r.Context(), sess.Token); err != nil {
			observability.FromContext(r.Context()).Warn("sign-out failed", slog.String("error", err.Error()))
		}
		h.clearCookie(w)
		http.Redirect(w, r, view.LoginURL("/dashboard"), http.StatusSeeOther)
		return
	default:
		header.User = user
	}

	h.renderer.Render(w, http.StatusOK, web.PageDashboard, view.DashboardPage{Header: header})
}

func (h *AuthHandler) setCookie(w http.ResponseWriter, sess *domain.Session) {
	maxAge := h.cookies.MaxAge
	if maxAge <= 0 {
		maxAge = time.Until(sess.ExpiresAt)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// authMessage prefers the explanation the auth service gave.
func authMessage(err error, fallback string) string {
	var valErr *domain.ValidationError
	var authErr *domain.AuthError
	switch {
	case errors.As(err, &valErr) && valErr.Message != "":
		return valErr.Message
	case errors.As(err, &authErr) && authErr.Message != "":
		return authErr.Message
	case errors.Is(err, domain.ErrSessionUnavailable):
		return msgSessionStoreError
	default:
		return fallback
	}
}
