package view

import (
	"net/url"
	"strings"
)

const defaultNext = "/dashboard"

// HomePage is the landing page for anonymous visitors.
type HomePage struct {
	Header
}

// DashboardPage greets a signed-in user.
type DashboardPage struct {
	Header
}

// AuthPage backs the login and sign-up forms.
type AuthPage struct {
	Header
	Email  string
	Next   string
	Error  string
	Notice string
}

// ErrorPage is rendered for failures outside a page's own error state.
type ErrorPage struct {
	Header
	Status  int
	Message string
}

// SafeNext keeps redirects on this site: only absolute paths are allowed,
// anything else falls back to the dashboard.
func SafeNext(next string) string {
	next = strings.TrimSpace(next)
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return defaultNext
	}
	u, err := url.Parse(next)
	if err != nil || u.IsAbs() || u.Host != "" {
		return defaultNext
	}
	return next
}

// LoginURL is where an anonymous visitor is sent to sign in before
// returning to next.
func LoginURL(next string) string {
	return "/login?next=" + url.QueryEscape(SafeNext(next))
}
