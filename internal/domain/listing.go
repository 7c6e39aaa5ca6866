package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ListingType is the kind of accommodation
type ListingType string

const (
	TypeStudio      ListingType = "studio"
	TypeChambre     ListingType = "chambre"
	TypeAppartement ListingType = "appartement"
)

// ListingTypes lists the types accepted on create, in form order
var ListingTypes = []ListingType{TypeStudio, TypeChambre, TypeAppartement}

// Valid reports whether t is one of the known types.
func (t ListingType) Valid() bool {
	switch t {
	case TypeStudio, TypeChambre, TypeAppartement:
		return true
	}
	return false
}

// Label returns the display label, falling back to the raw value.
func (t ListingType) Label() string {
	switch t {
	case TypeStudio:
		return "Studio"
	case TypeChambre:
		return "Chambre"
	case TypeAppartement:
		return "Appartement"
	}
	return string(t)
}

// ListingStatus is the rental state of a listing
type ListingStatus string

const (
	StatusAvailable ListingStatus = "available"
	StatusRented    ListingStatus = "rented"
	StatusSold      ListingStatus = "sold"
)

// Label returns the French badge text for the status.
func (s ListingStatus) Label() string {
	switch s {
	case StatusRented:
		return "Loué"
	case StatusSold:
		return "Vendu"
	default:
		return "Disponible"
	}
}

// Currency is an ISO 4217 code accepted by the create form
type Currency string

const (
	CurrencyXAF Currency = "XAF"
	CurrencyEUR Currency = "EUR"
	CurrencyUSD Currency = "USD"
)

// Currencies lists the accepted currencies, default first
var Currencies = []Currency{CurrencyXAF, CurrencyEUR, CurrencyUSD}

// Valid reports whether c is one of the accepted currencies.
func (c Currency) Valid() bool {
	switch c {
	case CurrencyXAF, CurrencyEUR, CurrencyUSD:
		return true
	}
	return false
}

// Price is a monthly amount. The backend sends it either as a JSON number or
// as a numeric string.
type Price float64

func (p *Price) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*p = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("price %q is not numeric", s)
		}
		*p = Price(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*p = Price(f)
	return nil
}

// Image is one photo of a listing
type Image struct {
	ImageURL string `json:"imageUrl"`
}

// Owner is the contact card of the listing's owner. Phone is optional.
type Owner struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Listing is a rentable property served by the remote backend. Images and
// Owner are optional; use the accessors instead of checking for nil.
type Listing struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Price       Price         `json:"price"`
	Currency    Currency      `json:"currency"`
	City        string        `json:"city"`
	District    string        `json:"district"`
	Type        ListingType   `json:"type"`
	Status      ListingStatus `json:"status"`
	Images      []Image       `json:"images,omitempty"`
	Owner       *Owner        `json:"owner,omitempty"`
}

// Normalize fills defaults for fields the backend may omit.
func (l *Listing) Normalize() {
	switch l.Status {
	case StatusAvailable, StatusRented, StatusSold:
	default:
		l.Status = StatusAvailable
	}
	if l.Currency == "" {
		l.Currency = CurrencyXAF
	}
	images := l.Images[:0]
	for _, img := range l.Images {
		if strings.TrimSpace(img.ImageURL) != "" {
			images = append(images, img)
		}
	}
	l.Images = images
}

// HasImages reports whether the listing has at least one photo.
func (l *Listing) HasImages() bool {
	return len(l.Images) > 0
}

// OwnerEmail returns the owner's email or "" when unknown.
func (l *Listing) OwnerEmail() string {
	if l.Owner == nil {
		return ""
	}
	return l.Owner.Email
}

// OwnerPhone returns the owner's phone or "" when not published.
func (l *Listing) OwnerPhone() string {
	if l.Owner == nil {
		return ""
	}
	return l.Owner.Phone
}

// OwnerInitial returns the upper-cased first letter of the owner's email.
func (l *Listing) OwnerInitial() string {
	return (&User{Email: l.OwnerEmail()}).Initial()
}

// ListingInput is the payload of POST /listings
type ListingInput struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Price       float64     `json:"price"`
	Currency    Currency    `json:"currency"`
	City        string      `json:"city"`
	District    string      `json:"district"`
	Type        ListingType `json:"type"`
}

// ContactRequest is a one-way message from a prospective renter to a
// listing owner.
type ContactRequest struct {
	Message   string `json:"message"`
	ListingID string `json:"listingId"`
}
