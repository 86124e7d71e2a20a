package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCents(t *testing.T) {
	cases := []struct {
		raw  string
		want int64
	}{
		{"12.34", 1234},
		{"12", 1200},
		{"12.3", 1230},
		{"0.05", 5},
		{"12,34", 1234},
		{"-3.50", -350},
		{" 7.00 ", 700},
		{".99", 99},
	}
	for _, tc := range cases {
		got, err := ParseCents(tc.raw)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
	}
}

func TestParseCentsRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "   ", "abc", "12.x4"} {
		_, err := ParseCents(raw)
		assert.ErrorIs(t, err, ErrInvalidAmount, raw)
	}
}

func TestFormatCents(t *testing.T) {
	assert.Equal(t, "12.34", FormatCents(1234))
	assert.Equal(t, "0.05", FormatCents(5))
	assert.Equal(t, "-3.50", FormatCents(-350))
	assert.Equal(t, "0.00", FormatCents(0))
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, cents := range []int64{0, 1, 99, 100, 123456, -250} {
		got, err := ParseCents(FormatCents(cents))
		require.NoError(t, err)
		assert.Equal(t, cents, got)
	}
}
