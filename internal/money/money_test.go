package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := map[string]int64{
		"500":       50000,
		"$1,250.50": 125050,
		" 0.005 ":   1,
		"(20.00)":   -2000,
		"-3.1":      -310,
		"12 345.00": 1234500,
		"€99.999":   10000,
	}
	for raw, want := range cases {
		got, err := Parse(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("  ")
	assert.ErrorIs(t, err, ErrEmptyAmount)

	_, err = Parse("12abc")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "USD 300.00", Format(30000, "usd"))
	assert.Equal(t, "EUR 1,234,567.05", Format(123456705, "EUR"))
	assert.Equal(t, "-0.50", Format(-50, ""))
}
