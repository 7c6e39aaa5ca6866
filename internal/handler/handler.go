// Package handler maps HTTP requests onto the session provider and the
// view controller, and renders the result.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"room-web/internal/domain"
	"room-web/internal/view"
	"room-web/internal/web"
)

// Renderer writes a named page.
type Renderer interface {
	Render(w http.ResponseWriter, status int, name string, data any)
}

// statusFor maps a failed load or action onto the response status.
func statusFor(err error) int {
	var netErr *domain.NetworkError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, domain.ErrListingNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrSubmissionInFlight):
		return http.StatusConflict
	case errors.Is(err, domain.ErrSessionUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &netErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

const msgPageNotFound = "Page introuvable"

// NotFound renders the error page for unknown routes. JSON callers get a
// JSON body.
func NotFound(renderer Renderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			writeJSONError(w, http.StatusNotFound, "Not found")
			return
		}
		renderer.Render(w, http.StatusNotFound, web.PageError, view.ErrorPage{
			Status:  http.StatusNotFound,
			Message: msgPageNotFound,
		})
	}
}
