package handler

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"room-web/internal/middleware"
	"room-web/internal/view"
	"room-web/internal/web"
)

// ListingHandler serves the listing grid, the detail page and the two
// write actions behind them.
type ListingHandler struct {
	controller *view.Controller
	renderer   Renderer
}

func NewListingHandler(controller *view.Controller, renderer Renderer) *ListingHandler {
	return &ListingHandler{
		controller: controller,
		renderer:   renderer,
	}
}

// Index renders the grid. ?new=1 opens the create form for signed-in users.
func (h *ListingHandler) Index(w http.ResponseWriter, r *http.Request) {
	token := middleware.GetSessionToken(r.Context())
	page := h.controller.Listings(r.Context(), token, r.URL.Query().Get("new") == "1")
	h.renderer.Render(w, statusFor(page.Cause), web.PageListings, page)
}

// Create runs behind RequireSession and CSRF. Success redirects to a fresh
// grid so a reload cannot post the form twice.
func (h *ListingHandler) Create(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.GetSession(r.Context())
	if !ok {
		http.Redirect(w, r, view.LoginURL("/listings?new=1"), http.StatusSeeOther)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Formulaire invalide", http.StatusBadRequest)
		return
	}

	form := view.ParseListingForm(r.PostForm)
	if _, err := h.controller.CreateListing(r.Context(), sess, form); err != nil {
		page := h.controller.Listings(r.Context(), sess.Token, true)
		page.ShowForm = true
		page.Form = form
		h.renderer.Render(w, statusFor(err), web.PageListings, page)
		return
	}

	http.Redirect(w, r, "/listings", http.StatusSeeOther)
}

func (h *ListingHandler) Detail(w http.ResponseWriter, r *http.Request) {
	token := middleware.GetSessionToken(r.Context())
	id := chi.URLParam(r, "id")
	page := h.controller.Detail(r.Context(), token, id, view.ParseDetailQuery(r.URL.Query()))
	h.renderer.Render(w, statusFor(page.Cause), web.PageListingDetail, page)
}

// Contact runs behind RequireSession and CSRF and re-renders the detail
// page with the outcome. Nothing is sent for a listing that cannot be shown.
func (h *ListingHandler) Contact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, ok := middleware.GetSession(r.Context())
	if !ok {
		http.Redirect(w, r, view.LoginURL("/listings/"+url.PathEscape(id)), http.StatusSeeOther)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Formulaire invalide", http.StatusBadRequest)
		return
	}
	message := r.PostFormValue("message")

	page := h.controller.Detail(r.Context(), sess.Token, id, view.ParseDetailQuery(r.URL.Query()))
	if page.Failed() {
		h.renderer.Render(w, statusFor(page.Cause), web.PageListingDetail, page)
		return
	}

	sent, err := h.controller.SendContact(r.Context(), sess, page.Listing.ID, message)
	status := http.StatusOK
	switch {
	case err != nil:
		page.Contact = view.ContactForm{Message: message, Error: view.ContactMessage(err)}
		status = statusFor(err)
	case sent:
		page.Contact = view.ContactForm{Sent: true}
	}
	h.renderer.Render(w, status, web.PageListingDetail, page)
}
