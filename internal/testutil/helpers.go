package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

// SessionCookieName mirrors the cookie the handlers set.
const SessionCookieName = "session_id"

// AssertStatusCode fails if the response status code doesn't match expected
func AssertStatusCode(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertRedirect fails unless the response is a redirect to location
func AssertRedirect(t *testing.T, w *httptest.ResponseRecorder, status int, location string) {
	t.Helper()
	AssertStatusCode(t, w, status)
	if got := w.Header().Get("Location"); got != location {
		t.Errorf("Location: got %q, want %q", got, location)
	}
}

// AssertJSONError fails if the response doesn't contain an error field with the expected message
func AssertJSONError(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedMsg string) {
	t.Helper()
	AssertStatusCode(t, w, expectedStatus)

	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode JSON error: %v. Body: %s", err, w.Body.String())
	}
	if !strings.Contains(body.Error, expectedMsg) {
		t.Errorf("expected error containing %q, got %q", expectedMsg, body.Error)
	}
}

// AssertCookie fails if the response doesn't have a cookie with the expected name
func AssertCookie(t *testing.T, w *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Errorf("expected cookie %q not found", name)
	return nil
}

// AssertClearedCookie fails unless the response deletes the named cookie
func AssertClearedCookie(t *testing.T, w *httptest.ResponseRecorder, name string) {
	t.Helper()
	c := AssertCookie(t, w, name)
	if c != nil && (c.Value != "" || c.MaxAge >= 0) {
		t.Errorf("cookie %q not cleared: value=%q max-age=%d", name, c.Value, c.MaxAge)
	}
}

// NewRequestWithSession creates a request carrying the session cookie
func NewRequestWithSession(method, target, token string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	}
	return req
}

// NewFormRequest creates a urlencoded form POST, with the session cookie
// when token is set
func NewFormRequest(target, token string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if token != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	}
	return req
}

// DecodeJSON decodes JSON response body into the given struct
func DecodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var result T
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode JSON response: %v. Body: %s", err, w.Body.String())
	}
	return result
}
