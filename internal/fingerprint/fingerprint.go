// Package fingerprint derives duplicate-detection keys for receipts and
// finds duplicate pairs among them. Two independent signals are combined
// with OR semantics: an exact content key match (amount, date, normalized
// merchant) or an identical image hash of the uploaded file bytes.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Signal names the matching rule that flagged a pair.
type Signal string

const (
	// SignalContent means the (amount, date, merchant) tuples match exactly.
	SignalContent Signal = "content"
	// SignalImage means the uploaded file bytes are identical. Image matches
	// survive hand edits to the extracted fields and are the stronger signal.
	SignalImage Signal = "image"
)

var whitespacePattern = regexp.MustCompile(`\s+`)

// NormalizeMerchant case-folds and collapses whitespace so formatting noise
// never defeats content matching.
func NormalizeMerchant(merchant string) string {
	return whitespacePattern.ReplaceAllString(strings.ToLower(strings.TrimSpace(merchant)), " ")
}

// ContentKey hashes the normalized (amount, date, merchant) tuple. It is
// empty when any component is missing; a partial tuple never matches.
func ContentKey(amountCents *int64, receiptDate *time.Time, merchant *string) string {
	if amountCents == nil || receiptDate == nil || merchant == nil {
		return ""
	}
	normalized := NormalizeMerchant(*merchant)
	if normalized == "" {
		return ""
	}
	raw := fmt.Sprintf("%d:%s:%s", *amountCents, receiptDate.UTC().Format("2006-01-02"), normalized)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Candidate is one receipt's duplicate-detection view.
type Candidate struct {
	ReceiptID   snowflake.ID
	TripID      snowflake.ID
	ImageHash   string
	AmountCents *int64
	ReceiptDate *time.Time
	Merchant    *string
}

// Pair is an unordered duplicate pair. A is always the smaller ID so the
// same pair never appears twice.
type Pair struct {
	A      snowflake.ID
	B      snowflake.ID
	Signal Signal
}

func makePair(x, y snowflake.ID, signal Signal) Pair {
	if y < x {
		x, y = y, x
	}
	return Pair{A: x, B: y, Signal: signal}
}

// DetectDuplicates returns every pair of candidates matching on either
// signal. The result is symmetric by construction and never contains a
// self-pair. Candidates are grouped by key first, so the pairwise work only
// happens inside groups.
func DetectDuplicates(candidates []Candidate) []Pair {
	byContent := map[string][]snowflake.ID{}
	byImage := map[string][]snowflake.ID{}
	for _, c := range candidates {
		if key := ContentKey(c.AmountCents, c.ReceiptDate, c.Merchant); key != "" {
			byContent[key] = append(byContent[key], c.ReceiptID)
		}
		if c.ImageHash != "" {
			byImage[c.ImageHash] = append(byImage[c.ImageHash], c.ReceiptID)
		}
	}

	seen := map[Pair]struct{}{}
	var pairs []Pair
	emit := func(group []snowflake.ID, signal Signal) {
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				if group[i] == group[j] {
					continue
				}
				pair := makePair(group[i], group[j], signal)
				key := Pair{A: pair.A, B: pair.B}
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				pairs = append(pairs, pair)
			}
		}
	}

	// Image matches first: they are the stronger signal and win the label
	// when a pair matches both ways.
	for _, group := range byImage {
		emit(group, SignalImage)
	}
	for _, group := range byContent {
		emit(group, SignalContent)
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].A != pairs[j].A {
			return pairs[i].A < pairs[j].A
		}
		return pairs[i].B < pairs[j].B
	})
	return pairs
}

// FilterScope restricts candidates to one trip when scope is trip-local.
// Global scope passes everything through.
func FilterScope(candidates []Candidate, tripID snowflake.ID, global bool) []Candidate {
	if global {
		return candidates
	}
	scoped := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.TripID == tripID {
			scoped = append(scoped, c)
		}
	}
	return scoped
}
