package view

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"room-web/internal/domain"
)

// ListingForm is the create-listing form as typed by the user. Price stays
// a string so an invalid entry can be shown back unchanged.
type ListingForm struct {
	Title       string
	Description string
	Price       string
	Currency    string
	City        string
	District    string
	Type        string

	Errors  map[string]string
	Message string
	Phase   Phase
}

// NewListingForm returns an empty form with the default currency and type.
func NewListingForm() *ListingForm {
	return &ListingForm{
		Currency: string(domain.CurrencyXAF),
		Type:     string(domain.TypeStudio),
	}
}

// ParseListingForm reads the posted form fields.
func ParseListingForm(values url.Values) *ListingForm {
	f := NewListingForm()
	f.Title = strings.TrimSpace(values.Get("title"))
	f.Description = strings.TrimSpace(values.Get("description"))
	f.Price = strings.TrimSpace(values.Get("price"))
	f.City = strings.TrimSpace(values.Get("city"))
	f.District = strings.TrimSpace(values.Get("district"))
	if v := strings.TrimSpace(values.Get("currency")); v != "" {
		f.Currency = v
	}
	if v := strings.TrimSpace(values.Get("type")); v != "" {
		f.Type = v
	}
	return f
}

// Validate checks every field and returns the payload to send. When ok is
// false, Errors explains each rejected field and nothing may be sent.
func (f *ListingForm) Validate() (input domain.ListingInput, ok bool) {
	f.Errors = make(map[string]string)

	if f.Title == "" {
		f.Errors["title"] = "Titre requis"
	}
	if f.Description == "" {
		f.Errors["description"] = "Description requise"
	}
	if f.City == "" {
		f.Errors["city"] = "Ville requise"
	}
	if f.District == "" {
		f.Errors["district"] = "Quartier requis"
	}

	price, err := parsePrice(f.Price)
	switch {
	case f.Price == "":
		f.Errors["price"] = "Prix requis"
	case err != nil:
		f.Errors["price"] = "Prix invalide"
	case price < 0:
		f.Errors["price"] = "Le prix doit être positif"
	}

	currency := domain.Currency(f.Currency)
	if !currency.Valid() {
		f.Errors["currency"] = "Devise invalide"
	}
	typ := domain.ListingType(f.Type)
	if !typ.Valid() {
		f.Errors["type"] = "Type invalide"
	}

	if len(f.Errors) > 0 {
		return domain.ListingInput{}, false
	}

	return domain.ListingInput{
		Title:       f.Title,
		Description: f.Description,
		Price:       price,
		Currency:    currency,
		City:        f.City,
		District:    f.District,
		Type:        typ,
	}, true
}

// Error returns the message for field, or "".
func (f *ListingForm) Error(field string) string {
	return f.Errors[field]
}

// Submitting reports whether the form is waiting on the backend.
func (f *ListingForm) Submitting() bool {
	return f.Phase == PhaseSubmitting
}

// parsePrice accepts a decimal comma and rejects NaN and infinities.
func parsePrice(s string) (float64, error) {
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, strconv.ErrSyntax
	}
	return v, nil
}

// ContactForm is the contact-owner form on the detail page.
type ContactForm struct {
	Message string
	Error   string
	Sent    bool
}
