// Package parse turns raw OCR text into normalized receipt fields with
// per-field confidence scores.
package parse

import (
	"regexp"
	"strings"
	"time"

	"github.com/smallbiznis/travelmate/internal/money"
)

// Fields is the normalized extraction output. Nil members were not found.
type Fields struct {
	Date        *time.Time
	Merchant    *string
	TotalCents  *int64
	VATCents    *int64
	Currency    *string
	PaymentType *string
}

var (
	totalLabelPattern  = regexp.MustCompile(`(?i)\b(total|amount due|grand total|paid)\b[^\d]{0,10}(\d+(?:[.,]\d{2})?)`)
	totalSuffixPattern = regexp.MustCompile(`(?i)\b(\d+(?:[.,]\d{2})?)\s*(usd|eur|gbp|jpy|cad|aud|chf|inr|aed|sgd|[$€£¥])`)
	vatPattern         = regexp.MustCompile(`(?i)\b(vat|tax|gst)\b[^\d]{0,10}(\d+(?:[.,]\d{2})?)`)
	dateLikePattern    = regexp.MustCompile(`\b\d{1,4}[/-]\d{1,2}[/-]\d{1,4}\b|\b\d{1,2}\.\d{1,2}\.\d{2,4}\b`)
	currencySymbol     = regexp.MustCompile(`[$€£¥]`)
	currencyCode       = regexp.MustCompile(`(?i)\b(USD|EUR|GBP|JPY|CAD|AUD|CHF|INR|AED|SGD)\b`)
	merchantStrip      = regexp.MustCompile(`[^A-Za-z0-9 &.-]`)
	whitespace         = regexp.MustCompile(`\s+`)
)

var symbolToCode = map[string]string{
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
	"¥": "JPY",
}

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"02-01-2006",
	"01-02-2006",
	"02.01.2006",
}

// NormalizeWhitespace collapses runs of whitespace into single spaces.
func NormalizeWhitespace(text string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

func parseAmountCents(raw string) (int64, bool) {
	cents, err := money.ParseCents(strings.TrimSpace(raw))
	if err != nil {
		return 0, false
	}
	return cents, true
}

func extractTotal(text string) (*int64, float64) {
	if m := totalLabelPattern.FindStringSubmatch(text); m != nil {
		if cents, ok := parseAmountCents(m[2]); ok {
			return &cents, 0.9
		}
	}
	if m := totalSuffixPattern.FindStringSubmatch(text); m != nil {
		if cents, ok := parseAmountCents(m[1]); ok {
			return &cents, 0.7
		}
	}
	return nil, 0
}

func extractVAT(text string) (*int64, float64) {
	m := vatPattern.FindStringSubmatch(text)
	if m == nil {
		return nil, 0
	}
	cents, ok := parseAmountCents(m[2])
	if !ok {
		return nil, 0
	}
	return &cents, 0.8
}

func extractDate(text string) (*time.Time, float64) {
	for _, candidate := range dateLikePattern.FindAllString(text, -1) {
		for _, layout := range dateLayouts {
			dt, err := time.Parse(layout, candidate)
			if err != nil {
				continue
			}
			// Two-digit years and OCR noise produce pre-2000 dates.
			if dt.Year() < 2000 {
				continue
			}
			dt = dt.UTC()
			return &dt, 0.9
		}
	}
	return nil, 0
}

func extractCurrency(text string) (*string, float64) {
	if sym := currencySymbol.FindString(text); sym != "" {
		code := symbolToCode[sym]
		return &code, 0.7
	}
	if m := currencyCode.FindStringSubmatch(text); m != nil {
		code := strings.ToUpper(m[1])
		return &code, 0.9
	}
	return nil, 0
}

var paymentKeywords = []struct {
	paymentType string
	keywords    []string
}{
	{"credit card", []string{"credit", "visa", "mastercard", "amex"}},
	{"debit card", []string{"debit"}},
	{"cash", []string{"cash"}},
	{"bank transfer", []string{"bank transfer", "wire", "iban"}},
	{"mobile wallet", []string{"apple pay", "google pay", "gpay"}},
}

func extractPaymentType(text string) (*string, float64) {
	lowered := strings.ToLower(text)
	for _, entry := range paymentKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lowered, kw) {
				pt := entry.paymentType
				return &pt, 0.8
			}
		}
	}
	return nil, 0
}

func extractMerchant(text string) (*string, float64) {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	if len(lines) == 0 {
		return nil, 0
	}

	badTokens := []string{"receipt", "invoice", "tax", "date", "total", "amount"}
	head := lines
	if len(head) > 6 {
		head = head[:6]
	}
outer:
	for _, line := range head {
		compact := strings.TrimSpace(merchantStrip.ReplaceAllString(line, ""))
		if len(compact) < 3 {
			continue
		}
		lowered := strings.ToLower(compact)
		for _, token := range badTokens {
			if strings.Contains(lowered, token) {
				continue outer
			}
		}
		return &compact, 0.6
	}

	fallback := lines[0]
	if len(fallback) > 120 {
		fallback = fallback[:120]
	}
	return &fallback, 0.4
}

// Extract pulls all recognized fields out of raw OCR text and returns them
// with an aggregate extraction confidence in [0, 1].
func Extract(rawText string) (Fields, float64) {
	date, dateConf := extractDate(rawText)
	merchant, merchantConf := extractMerchant(rawText)
	total, totalConf := extractTotal(rawText)
	vat, vatConf := extractVAT(rawText)
	currency, currencyConf := extractCurrency(rawText)
	paymentType, paymentConf := extractPaymentType(rawText)

	fields := Fields{
		Date:        date,
		Merchant:    merchant,
		TotalCents:  total,
		VATCents:    vat,
		Currency:    currency,
		PaymentType: paymentType,
	}

	confidences := []float64{dateConf, merchantConf, totalConf, vatConf, currencyConf, paymentConf}
	var sum float64
	for _, c := range confidences {
		if c > 0 {
			sum += c
		}
	}
	return fields, round3(sum / float64(len(confidences)))
}

func round3(v float64) float64 {
	return float64(int64(v*1000+0.5)) / 1000
}
