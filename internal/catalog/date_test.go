package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDATEWidths(t *testing.T) {
	cases := []struct {
		in       string
		wantUnit time.Duration
	}{
		{"2026", 0},
		{"202603", 0},
		{"20260304", 24 * time.Hour},
		{"2026030405", time.Hour},
		{"202603040506", time.Minute},
		{"20260304050607", time.Second},
	}
	for _, c := range cases {
		start, unit, err := ParseDATE(c.in)
		require.NoError(t, err, c.in)
		assert.False(t, start.IsZero(), c.in)
		if c.wantUnit != 0 {
			assert.Equal(t, c.wantUnit, unit, c.in)
		}
	}
}

func TestParseDATEStripsSeparators(t *testing.T) {
	a, _, err := ParseDATE("2026-03-04 05:06:07")
	require.NoError(t, err)
	b, _, err := ParseDATE("20260304050607")
	require.NoError(t, err)
	assert.Equal(t, b, a)
}

func TestParseDATERejectsGarbage(t *testing.T) {
	_, _, err := ParseDATE("not-a-date")
	assert.Error(t, err)

	_, _, err = ParseDATE("123")
	assert.Error(t, err)
}

func TestParseDATERangeOneToken(t *testing.T) {
	r, err := ParseDATERange([]string{"20260304"})
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, r.To.Sub(r.From))
}

func TestParseDATERangeTwoTokens(t *testing.T) {
	r, err := ParseDATERange([]string{"20260101", "20260301"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), r.From)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), r.To)
}

func TestParseDATERangeRejectsTokenCount(t *testing.T) {
	_, err := ParseDATERange(nil)
	assert.Error(t, err)
	_, err = ParseDATERange([]string{"2026", "2026", "2026"})
	assert.Error(t, err)
}
