package view

import (
	"fmt"
	"net/url"
	"strings"

	"room-web/internal/domain"
)

// Header is the top bar shown on every page.
type Header struct {
	Auth      AuthState
	User      *domain.User
	CSRFToken string
}

// NewHeader builds the header from a session lookup result.
func NewHeader(sess *domain.Session, err error) Header {
	h := Header{Auth: ResolveAuth(sess, err)}
	if h.Auth == AuthAuthenticated {
		user := sess.User
		h.User = &user
		h.CSRFToken = sess.CSRFToken
	}
	return h
}

func (h Header) Authenticated() bool { return h.Auth == AuthAuthenticated }
func (h Header) Unavailable() bool { return h.Auth == AuthUnavailable }

// DisplayName is the name from the user's profile, or a generic label.
func (h Header) DisplayName() string {
	if h.User == nil || strings.TrimSpace(h.User.Name) == "" {
		return "Utilisateur"
	}
	return h.User.Name
}

func (h Header) Initial() string { return h.User.Initial() }

// ListingCard is one tile of the listings grid.
type ListingCard struct {
	domain.Listing
	PriceLabel  string
	PerMonth    bool
	TypeLabel   string
	StatusLabel string
	Summary     string
	Cover       string
}

func newListingCard(l domain.Listing) ListingCard {
	card := ListingCard{
		Listing:     l,
		PriceLabel:  FormatPrice(float64(l.Price), l.Currency),
		PerMonth:    ShowPerMonth(l.Currency),
		TypeLabel:   l.Type.Label(),
		StatusLabel: l.Status.Label(),
		Summary:     Truncate(l.Description, 140),
	}
	if l.HasImages() {
		card.Cover = l.Images[0].ImageURL
	}
	return card
}

// ListingsPage is the listing grid with its optional create form.
type ListingsPage struct {
	Header
	Phase    Phase
	Error    string
	Cause    error
	Listings []ListingCard
	ShowForm bool
	Form     *ListingForm
}

func (p *ListingsPage) Empty() bool {
	return p.Phase == PhaseReady && len(p.Listings) == 0
}

func (p *ListingsPage) EmptyMessage() string { return msgEmptyListings }
func (p *ListingsPage) SignInPrompt() string { return msgSignInToCreate }
func (p *ListingsPage) CanCreate() bool { return p.Authenticated() }
func (p *ListingsPage) Count() int { return len(p.Listings) }
func (p *ListingsPage) Loading() bool { return p.Phase == PhaseLoading }
func (p *ListingsPage) Failed() bool { return p.Phase == PhaseError }

// Gallery is the image carousel of the detail page. Index always points at
// an existing image when there is one.
type Gallery struct {
	Images []domain.Image
	Index  int
}

// NewGallery wraps index into range.
func NewGallery(images []domain.Image, index int) Gallery {
	g := Gallery{Images: images}
	if n := len(images); n > 0 {
		g.Index = ((index % n) + n) % n
	}
	return g
}

func (g Gallery) Empty() bool { return len(g.Images) == 0 }
func (g Gallery) Multiple() bool { return len(g.Images) > 1 }
func (g Gallery) Count() int { return len(g.Images) }
func (g Gallery) Position() int { return g.Index + 1 }

// Current returns the URL of the selected image, or "".
func (g Gallery) Current() string {
	if g.Empty() {
		return ""
	}
	return g.Images[g.Index].ImageURL
}

func (g Gallery) Prev() int {
	if g.Empty() {
		return 0
	}
	return (g.Index - 1 + len(g.Images)) % len(g.Images)
}

func (g Gallery) Next() int {
	if g.Empty() {
		return 0
	}
	return (g.Index + 1) % len(g.Images)
}

// DetailQuery is the UI state carried in the detail page's query string.
type DetailQuery struct {
	Image    int
	Favorite bool
}

// ParseDetailQuery reads ?img= and ?fav=. Bad values fall back to defaults.
func ParseDetailQuery(q url.Values) DetailQuery {
	var dq DetailQuery
	fmt.Sscan(q.Get("img"), &dq.Image)
	dq.Favorite = q.Get("fav") == "1"
	return dq
}

// DetailPage is one listing with its gallery, owner card and contact form.
type DetailPage struct {
	Header
	Phase       Phase
	Error       string
	Cause       error
	Listing     *domain.Listing
	Price       string
	TypeBadge   string
	StatusTitle string
	StatusText  string
	Gallery     Gallery
	Favorite    bool
	Contact     ContactForm
}

func (p *DetailPage) Failed() bool { return p.Phase == PhaseError }
func (p *DetailPage) CanContact() bool { return p.Authenticated() }
func (p *DetailPage) SignInPrompt() string { return msgSignInToContact }

// OwnerName is the owner's email, or "Inconnu".
func (p *DetailPage) OwnerName() string {
	if p.Listing == nil || p.Listing.OwnerEmail() == "" {
		return "Inconnu"
	}
	return p.Listing.OwnerEmail()
}

// Link builds the detail URL for the given gallery index and favorite flag.
func (p *DetailPage) Link(image int, favorite bool) string {
	if p.Listing == nil {
		return "/listings"
	}
	q := url.Values{}
	if image != 0 {
		q.Set("img", fmt.Sprint(image))
	}
	if favorite {
		q.Set("fav", "1")
	}
	u := "/listings/" + url.PathEscape(p.Listing.ID)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (p *DetailPage) PrevLink() string { return p.Link(p.Gallery.Prev(), p.Favorite) }
func (p *DetailPage) NextLink() string { return p.Link(p.Gallery.Next(), p.Favorite) }
func (p *DetailPage) ImageLink(i int) string { return p.Link(i, p.Favorite) }
func (p *DetailPage) ToggleFavoriteLink() string { return p.Link(p.Gallery.Index, !p.Favorite) }
