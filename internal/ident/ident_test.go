package ident

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tbl, err := Parse("first.cities")
	require.NoError(t, err)
	assert.Equal(t, Table{Schema: "first", Name: "cities"}, tbl)
	assert.Equal(t, "first.cities", tbl.String())
}

func TestParseRejectsMissingSchema(t *testing.T) {
	_, err := Parse("cities")
	assert.ErrorIs(t, err, ErrInvalidIdent)
}

func TestParseRejectsTooManyParts(t *testing.T) {
	_, err := Parse("a.b.c")
	assert.ErrorIs(t, err, ErrInvalidIdent)
}

func TestSuffixed(t *testing.T) {
	tbl := MustParse("first.cities")
	assert.Equal(t, MustParse("first.cities_duro_temp"), tbl.Suffixed("_duro_temp"))
}
