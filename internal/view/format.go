package view

import (
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"room-web/internal/domain"
)

var printer = message.NewPrinter(language.French)

var currencySymbols = map[domain.Currency]string{
	domain.CurrencyXAF: "FCFA",
	domain.CurrencyEUR: "€",
	domain.CurrencyUSD: "$US",
}

// FormatPrice renders amount the way a fr-FR browser does: grouped digits,
// the symbol after the amount, no decimals for CFA francs.
func FormatPrice(amount float64, c domain.Currency) string {
	if c == "" {
		c = domain.CurrencyXAF
	}
	symbol, ok := currencySymbols[c]
	if !ok {
		symbol = string(c)
	}

	digits := 2
	if c == domain.CurrencyXAF {
		digits = 0
		amount = math.Round(amount)
	}

	s := printer.Sprint(number.Decimal(amount, number.MaxFractionDigits(digits)))
	return s + "\u00a0" + symbol
}

// ShowPerMonth reports whether the card adds "par mois" after the price.
func ShowPerMonth(c domain.Currency) bool {
	return c != "" && c != domain.CurrencyXAF
}

// TypeBadge is the detail-page type label.
func TypeBadge(t domain.ListingType) string {
	switch t {
	case domain.TypeStudio:
		return "🏠 Studio"
	case domain.TypeChambre:
		return "🛏️ Chambre"
	case domain.TypeAppartement:
		return "🏢 Appartement"
	}
	return string(t)
}

// StatusDetail returns the status heading and its explanation.
func StatusDetail(s domain.ListingStatus) (string, string) {
	switch s {
	case domain.StatusRented:
		return "Loué", "Actuellement occupé"
	case domain.StatusSold:
		return "Vendu", "Non disponible"
	default:
		return "Disponible", "Prêt à être loué dès maintenant"
	}
}

// Truncate shortens s to at most n runes, ending with an ellipsis.
func Truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}
