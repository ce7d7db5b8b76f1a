package normalize

import (
	"context"
	"regexp"
	"strings"

	"github.com/coolbeans/contracta/pkg/document"
)

var currencySymbols = map[string]string{
	"$": "USD",
	"£": "GBP",
	"€": "EUR",
	"¥": "JPY",
	"₹": "INR",
}

// Longer names come first so "canadian dollar" wins over "dollar".
var currencyNames = []struct {
	name string
	code string
}{
	{"canadian dollar", "CAD"},
	{"australian dollar", "AUD"},
	{"new zealand dollar", "NZD"},
	{"hong kong dollar", "HKD"},
	{"singapore dollar", "SGD"},
	{"us dollar", "USD"},
	{"u.s. dollar", "USD"},
	{"pounds sterling", "GBP"},
	{"pound sterling", "GBP"},
	{"british pound", "GBP"},
	{"swiss franc", "CHF"},
	{"japanese yen", "JPY"},
	{"euro", "EUR"},
	{"dollar", "USD"},
	{"pound", "GBP"},
}

var isoCodes = map[string]bool{
	"USD": true, "GBP": true, "EUR": true, "JPY": true, "INR": true, "CAD": true,
	"AUD": true, "CHF": true, "CNY": true, "SGD": true, "NZD": true, "HKD": true,
	"SEK": true, "NOK": true, "DKK": true, "ZAR": true, "BRL": true, "MXN": true,
}

var (
	isoCode      = regexp.MustCompile(`\b[A-Z]{3}\b`)
	amountDigits = regexp.MustCompile(`[0-9]+(?:[,.][0-9]+)*`)
)

// CurrencyNormalizer renders amounts as "<ISO code> <digits>.<cents>".
type CurrencyNormalizer struct{}

// NewCurrencyNormalizer creates a currency normalizer.
func NewCurrencyNormalizer() *CurrencyNormalizer {
	return &CurrencyNormalizer{}
}

// Normalize sets entity.Normalized when both a currency and an amount are found.
func (normalizer *CurrencyNormalizer) Normalize(ctx context.Context, entity *document.Entity) {
	if value, ok := ParseAmount(entity.Name); ok {
		entity.Normalized = value
	}
}

// ParseAmount reads a currency amount such as "USD 1,250,000.00",
// "€1.250,50" or "500 US Dollars" and returns "USD 1250000.00".
func ParseAmount(text string) (string, bool) {
	code := currencyCode(text)
	if code == "" {
		return "", false
	}
	digits := amountDigits.FindString(text)
	if digits == "" {
		return "", false
	}
	return code + " " + canonicalAmount(digits), true
}

func currencyCode(text string) string {
	for symbol, code := range currencySymbols {
		if strings.Contains(text, symbol) {
			return code
		}
	}
	for _, match := range isoCode.FindAllString(text, -1) {
		if isoCodes[match] {
			return match
		}
	}
	lowered := strings.ToLower(text)
	for _, name := range currencyNames {
		if strings.Contains(lowered, name.name) {
			return name.code
		}
	}
	return ""
}

// canonicalAmount decides which separator is the decimal point. With both
// present the last one is. A lone separator followed by exactly three digits
// groups thousands; otherwise it is the decimal point.
func canonicalAmount(digits string) string {
	lastComma := strings.LastIndex(digits, ",")
	lastDot := strings.LastIndex(digits, ".")

	decimal := -1
	switch {
	case lastComma >= 0 && lastDot >= 0:
		decimal = max(lastComma, lastDot)
	case lastComma >= 0 || lastDot >= 0:
		separator := digits[max(lastComma, lastDot)]
		if strings.Count(digits, string(separator)) == 1 && len(digits)-max(lastComma, lastDot)-1 != 3 {
			decimal = max(lastComma, lastDot)
		}
	}

	whole, fraction := digits, ""
	if decimal >= 0 {
		whole, fraction = digits[:decimal], digits[decimal+1:]
	}
	whole = strings.NewReplacer(",", "", ".", "").Replace(whole)
	whole = strings.TrimLeft(whole, "0")
	if whole == "" {
		whole = "0"
	}
	for len(fraction) < 2 {
		fraction += "0"
	}
	return whole + "." + fraction
}
