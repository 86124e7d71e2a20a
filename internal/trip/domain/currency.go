package domain

import "strings"

// recognizedCurrencies is the ISO-4217 subset accepted on expense items.
var recognizedCurrencies = map[string]struct{}{
	"EUR": {}, "USD": {}, "GBP": {}, "JPY": {}, "CHF": {},
	"CAD": {}, "AUD": {}, "SEK": {}, "NOK": {}, "DKK": {},
	"PLN": {}, "CZK": {}, "HUF": {}, "INR": {}, "AED": {},
	"SGD": {}, "CNY": {}, "TRY": {},
}

// ValidCurrency reports whether code is a recognized 3-letter currency code.
func ValidCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	_, ok := recognizedCurrencies[strings.ToUpper(code)]
	return ok
}
