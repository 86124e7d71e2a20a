// Package money holds cent-precision amount helpers. Monetary values are
// stored as int64 cents everywhere; decimal strings only appear at the API
// and export boundaries.
package money

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidAmount = errors.New("invalid_amount")

// ParseCents converts a decimal string ("12.34", "12", "12.3") into cents.
// Comma decimal separators are accepted since OCR output frequently uses
// them on European receipts.
func ParseCents(raw string) (int64, error) {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return 0, ErrInvalidAmount
	}
	cleaned = strings.ReplaceAll(cleaned, ",", ".")

	negative := strings.HasPrefix(cleaned, "-")
	if negative {
		cleaned = cleaned[1:]
	}

	whole := cleaned
	frac := ""
	if idx := strings.IndexByte(cleaned, '.'); idx >= 0 {
		whole = cleaned[:idx]
		frac = cleaned[idx+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 2 {
		frac = frac[:2]
	}
	for len(frac) < 2 {
		frac += "0"
	}

	wholeValue, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	fracValue, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}

	cents := wholeValue*100 + fracValue
	if negative {
		cents = -cents
	}
	return cents, nil
}

// FormatCents renders cents as a decimal string with two places.
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
