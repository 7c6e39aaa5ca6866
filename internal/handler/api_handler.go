package handler

import (
	"context"
	"log/slog"
	"net/http"

	"room-web/internal/domain"
	"room-web/internal/middleware"
	"room-web/internal/observability"
	"room-web/internal/view"
)

// ListingLister fetches the listing collection.
type ListingLister interface {
	List(ctx context.Context) ([]domain.Listing, error)
}

// SessionState is the body of GET /api/v1/session.
type SessionState struct {
	Authenticated bool         `json:"authenticated"`
	User          *domain.User `json:"user"`
}

// APIHandler is the small JSON surface for scripts and the browser bundle.
type APIHandler struct {
	sessions view.SessionSource
	listings ListingLister
}

func NewAPIHandler(sessions view.SessionSource, listings ListingLister) *APIHandler {
	return &APIHandler{
		sessions: sessions,
		listings: listings,
	}
}

func (h *APIHandler) Session(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.CurrentUser(r.Context(), middleware.GetSessionToken(r.Context()))
	if err != nil {
		observability.FromContext(r.Context()).Warn("session lookup failed", slog.String("error", err.Error()))
		writeJSONError(w, http.StatusServiceUnavailable, "Session unavailable")
		return
	}

	state := SessionState{Authenticated: sess.Authenticated()}
	if state.Authenticated {
		user := sess.User
		state.User = &user
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *APIHandler) Listings(w http.ResponseWriter, r *http.Request) {
	listings, err := h.listings.List(r.Context())
	if err != nil {
		observability.FromContext(r.Context()).Warn("failed to load listings", slog.String("error", err.Error()))
		writeJSONError(w, http.StatusBadGateway, view.Message(err))
		return
	}
	if listings == nil {
		listings = []domain.Listing{}
	}
	writeJSON(w, http.StatusOK, listings)
}
