package timestamps

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogInsertSetsFinish(t *testing.T) {
	r := New()
	start := time.Unix(1000, 0)
	finish := time.Unix(1100, 0)
	r.Log(PhaseStart, start)
	r.Log(PhaseInsert, finish)

	d, ok := r.Duration()
	require.True(t, ok)
	assert.Equal(t, 100*time.Second, d)
}

func TestLogDropOldSetsFinish(t *testing.T) {
	r := New()
	start := time.Unix(1000, 0)
	finish := time.Unix(1050, 0)
	r.Log(PhaseStart, start)
	r.Log(PhaseDropOld, finish)

	d, ok := r.Duration()
	require.True(t, ok)
	assert.Equal(t, 50*time.Second, d)
}

func TestDurationAbsentWithoutFinish(t *testing.T) {
	r := New()
	r.Log(PhaseStart, time.Unix(1000, 0))
	_, ok := r.Duration()
	assert.False(t, ok)
}

func TestAsEpochMapIncludesFinish(t *testing.T) {
	r := New()
	r.Log(PhaseStart, time.Unix(1000, 0))
	r.Log(PhaseInsert, time.Unix(1100, 0))

	m := r.AsEpochMap()
	assert.Equal(t, int64(1000), m["start"])
	assert.Equal(t, int64(1100), m["insert"])
	assert.Equal(t, int64(1100), m["finish"])
}
