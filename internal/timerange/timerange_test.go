package timerange

import (
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLayouts(t *testing.T) {
	want := time.Date(2021, 11, 20, 5, 0, 0, 0, time.UTC)
	for _, v := range []string{"2021-11-20 05:00:00", "2021-11-20T05:00:00", "2021-11-20T05:00:00Z", "2021-11-20 05:00"} {
		got, err := ParseTime(v)
		require.NoError(t, err, v)
		assert.True(t, want.Equal(got), v)
	}

	day, err := ParseTime("2021-11-20")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2021, 11, 20, 0, 0, 0, 0, time.UTC), day)

	_, err = ParseTime("20/11/2021")
	assert.Error(t, err)
}

func TestParseEmptyBoundsIsUnbounded(t *testing.T) {
	r, err := Parse("", "")
	require.NoError(t, err)
	assert.False(t, r.Bounded())
	assert.True(t, r.Contains(time.Time{}))
	assert.Equal(t, "[-inf, +inf)", r.String())
}

func TestParseRejectsEmptyRange(t *testing.T) {
	_, err := Parse("2021-11-21", "2021-11-20")
	assert.ErrorIs(t, err, ErrEmptyRange)

	_, err = Parse("2021-11-20", "2021-11-20")
	assert.ErrorIs(t, err, ErrEmptyRange)
}

func TestContainsStartInclusiveEndExclusive(t *testing.T) {
	start := time.Date(2021, 11, 20, 0, 0, 0, 0, time.UTC)
	end := time.Date(2021, 11, 20, 3, 0, 0, 0, time.UTC)
	r, err := New(optional.Some(start), optional.Some(end))
	require.NoError(t, err)

	assert.False(t, r.Contains(start.Add(-time.Nanosecond)))
	assert.True(t, r.Contains(start))
	assert.True(t, r.Contains(end.Add(-time.Second)))
	assert.False(t, r.Contains(end))
}
