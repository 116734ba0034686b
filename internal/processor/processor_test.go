package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/duro-sh/duro/internal/ident"
)

func TestEscapeBackslashDoublesBackslashes(t *testing.T) {
	assert.Equal(t, `a\\b`, escapeBackslash(`a\b`))
	assert.Equal(t, "plain", escapeBackslash("plain"))
}

func TestStringifyValueHandlesNilAndBytes(t *testing.T) {
	assert.Equal(t, "", stringifyValue(nil))
	assert.Equal(t, "hello", stringifyValue([]byte("hello")))
	assert.Equal(t, "42", stringifyValue(42))
}

func TestRewriteForTempSubstitutesTableName(t *testing.T) {
	ddl := `CREATE TABLE first.cities (id int)`
	out := rewriteForTemp(ddl, ident.MustParse("first.cities"), ident.MustParse("first.cities").Suffixed("_duro_temp"))
	assert.Equal(t, `CREATE TABLE first.cities_duro_temp (id int)`, out)
}

func TestProcessorRunErrorMessage(t *testing.T) {
	err := &ProcessorRunError{Table: "a.b", Output: "traceback..."}
	assert.Contains(t, err.Error(), "a.b")
	assert.Contains(t, err.Error(), "traceback")
}
