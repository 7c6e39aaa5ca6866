// Package web renders the HTML pages and serves their static assets.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"

	"room-web/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Page names accepted by Render.
const (
	PageHome          = "home"
	PageLogin         = "login"
	PageSignup        = "signup"
	PageDashboard     = "dashboard"
	PageListings      = "listings"
	PageListingDetail = "listing_detail"
	PageError         = "error"
)

var pageNames = []string{
	PageHome, PageLogin, PageSignup, PageDashboard,
	PageListings, PageListingDetail, PageError,
}

var funcs = template.FuncMap{
	"currencies":   func() []domain.Currency { return domain.Currencies },
	"listingTypes": func() []domain.ListingType { return domain.ListingTypes },
}

// Renderer holds one template set per page, each sharing the layout.
type Renderer struct {
	pages map[string]*template.Template
}

func NewRenderer() (*Renderer, error) {
	r := &Renderer{pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS,
			"templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// Render executes the page into a buffer first so a template error never
// leaves a half-written response.
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, data any) {
	t, ok := r.pages[name]
	if !ok {
		slog.Error("unknown page", slog.String("page", name))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		slog.Error("failed to render page",
			slog.String("page", name),
			slog.String("error", err.Error()))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// Static serves the embedded assets under /static/.
func Static() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}
