package interval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(s string) (*int, error) {
	return Parse(&s)
}

func TestParseUnits(t *testing.T) {
	cases := map[string]int{
		"1m": 1, "30m": 30, "4h": 240, "1d": 1440, "1w": 10080,
		"1H": 60, "2D": 2880,
	}
	for in, want := range cases {
		got, err := parse(in)
		require.NoError(t, err, in)
		require.NotNil(t, got, in)
		assert.Equal(t, want, *got, in)
	}
}

func TestParseNilIsNil(t *testing.T) {
	got, err := Parse(nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestParseEmptyIsNil(t *testing.T) {
	got, err := parse("")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestParseRejectsUnknownUnit(t *testing.T) {
	_, err := parse("1z")
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestParseRejectsNonNumeric(t *testing.T) {
	_, err := parse("zzh")
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestParseZeroMinutesIsZero(t *testing.T) {
	got, err := parse("0m")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 0, *got)
}
