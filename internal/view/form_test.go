package view

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"room-web/internal/domain"
)

func validValues() url.Values {
	return url.Values{
		"title":       {" Studio Bonapriso "},
		"description": {"Meublé"},
		"price":       {"75000"},
		"city":        {"Douala"},
		"district":    {"Bonapriso"},
	}
}

func TestParseListingForm_Defaults(t *testing.T) {
	f := ParseListingForm(validValues())

	assert.Equal(t, "Studio Bonapriso", f.Title)
	assert.Equal(t, "XAF", f.Currency)
	assert.Equal(t, "studio", f.Type)

	input, ok := f.Validate()
	require.True(t, ok, f.Errors)
	assert.Equal(t, 75000.0, input.Price)
	assert.Equal(t, domain.CurrencyXAF, input.Currency)
	assert.Equal(t, domain.TypeStudio, input.Type)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value string
		want  string
	}{
		{"empty_price", "price", "", "Prix requis"},
		{"non_numeric_price", "price", "douze", "Prix invalide"},
		{"nan_price", "price", "NaN", "Prix invalide"},
		{"negative_price", "price", "-1", "Le prix doit être positif"},
		{"blank_title", "title", "   ", "Titre requis"},
		{"missing_city", "city", "", "Ville requise"},
		{"bad_currency", "currency", "GBP", "Devise invalide"},
		{"bad_type", "type", "villa", "Type invalide"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := validValues()
			values.Set(tt.field, tt.value)

			f := ParseListingForm(values)
			_, ok := f.Validate()

			assert.False(t, ok)
			assert.Equal(t, tt.want, f.Error(tt.field))
		})
	}
}

func TestValidate_DecimalComma(t *testing.T) {
	values := validValues()
	values.Set("price", "1 250,50")
	values.Set("currency", "EUR")

	input, ok := ParseListingForm(values).Validate()
	require.True(t, ok)
	assert.Equal(t, 1250.5, input.Price)
}
