package fingerprint

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptrInt64(v int64) *int64    { return &v }
func ptrString(v string) *string { return &v }

func ptrDate(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestNormalizeMerchant(t *testing.T) {
	assert.Equal(t, "rewe markt", NormalizeMerchant("  REWE   Markt "))
	assert.Equal(t, "deutsche bahn", NormalizeMerchant("Deutsche\tBahn"))
	assert.Equal(t, "", NormalizeMerchant("   "))
}

func TestContentKeyIgnoresFormattingNoise(t *testing.T) {
	a := ContentKey(ptrInt64(2380), ptrDate(2026, 3, 14), ptrString("REWE Markt"))
	b := ContentKey(ptrInt64(2380), ptrDate(2026, 3, 14), ptrString("  rewe   MARKT "))
	require.NotEmpty(t, a)
	assert.Equal(t, a, b)

	c := ContentKey(ptrInt64(2381), ptrDate(2026, 3, 14), ptrString("REWE Markt"))
	assert.NotEqual(t, a, c)
}

func TestContentKeyEmptyOnPartialTuple(t *testing.T) {
	assert.Empty(t, ContentKey(nil, ptrDate(2026, 3, 14), ptrString("REWE")))
	assert.Empty(t, ContentKey(ptrInt64(100), nil, ptrString("REWE")))
	assert.Empty(t, ContentKey(ptrInt64(100), ptrDate(2026, 3, 14), nil))
	assert.Empty(t, ContentKey(ptrInt64(100), ptrDate(2026, 3, 14), ptrString("  ")))
}

func candidate(id, trip int64, imageHash string, amount *int64, date *time.Time, merchant *string) Candidate {
	return Candidate{
		ReceiptID:   snowflake.ID(id),
		TripID:      snowflake.ID(trip),
		ImageHash:   imageHash,
		AmountCents: amount,
		ReceiptDate: date,
		Merchant:    merchant,
	}
}

func TestDetectDuplicatesContentMatch(t *testing.T) {
	date := ptrDate(2026, 3, 14)
	a := candidate(1, 10, "hash-a", ptrInt64(2380), date, ptrString("REWE"))
	b := candidate(2, 10, "hash-b", ptrInt64(2380), date, ptrString("rewe"))
	c := candidate(3, 10, "hash-c", ptrInt64(999), date, ptrString("REWE"))

	pairs := DetectDuplicates([]Candidate{a, b, c})
	require.Len(t, pairs, 1)
	assert.Equal(t, Pair{A: 1, B: 2, Signal: SignalContent}, pairs[0])
}

func TestDetectDuplicatesOrderIndependent(t *testing.T) {
	date := ptrDate(2026, 3, 14)
	a := candidate(1, 10, "same", ptrInt64(2380), date, ptrString("REWE"))
	b := candidate(2, 10, "same", nil, nil, nil)

	forward := DetectDuplicates([]Candidate{a, b})
	reversed := DetectDuplicates([]Candidate{b, a})
	assert.Equal(t, forward, reversed)
	require.Len(t, forward, 1)
	assert.Equal(t, snowflake.ID(1), forward[0].A)
	assert.Equal(t, snowflake.ID(2), forward[0].B)
}

func TestDetectDuplicatesNoSelfPairs(t *testing.T) {
	date := ptrDate(2026, 3, 14)
	a := candidate(1, 10, "same", ptrInt64(2380), date, ptrString("REWE"))

	pairs := DetectDuplicates([]Candidate{a, a})
	assert.Empty(t, pairs)
}

func TestDetectDuplicatesImageSignalWins(t *testing.T) {
	// Identical files whose extracted fields also match: the pair must be
	// reported once, labeled with the image signal.
	date := ptrDate(2026, 3, 14)
	a := candidate(1, 10, "same", ptrInt64(2380), date, ptrString("REWE"))
	b := candidate(2, 10, "same", ptrInt64(2380), date, ptrString("REWE"))

	pairs := DetectDuplicates([]Candidate{a, b})
	require.Len(t, pairs, 1)
	assert.Equal(t, SignalImage, pairs[0].Signal)
}

func TestDetectDuplicatesImageSurvivesFieldEdits(t *testing.T) {
	// Same uploaded bytes but a hand-edited amount on one copy: content keys
	// diverge, the image hash still flags the pair.
	date := ptrDate(2026, 3, 14)
	a := candidate(1, 10, "same", ptrInt64(2380), date, ptrString("REWE"))
	b := candidate(2, 10, "same", ptrInt64(2379), date, ptrString("REWE"))

	pairs := DetectDuplicates([]Candidate{a, b})
	require.Len(t, pairs, 1)
	assert.Equal(t, SignalImage, pairs[0].Signal)
}

func TestFilterScope(t *testing.T) {
	date := ptrDate(2026, 3, 14)
	inTrip := candidate(1, 10, "h1", ptrInt64(100), date, ptrString("a"))
	otherTrip := candidate(2, 11, "h2", ptrInt64(100), date, ptrString("a"))

	scoped := FilterScope([]Candidate{inTrip, otherTrip}, snowflake.ID(10), false)
	require.Len(t, scoped, 1)
	assert.Equal(t, snowflake.ID(1), scoped[0].ReceiptID)

	global := FilterScope([]Candidate{inTrip, otherTrip}, snowflake.ID(10), true)
	assert.Len(t, global, 2)
}
