package notesdb

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextUpdatedOn(t *testing.T) {
	prev := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("clock moved forward", func(t *testing.T) {
		now := prev.Add(5 * time.Second)
		assert.Equal(t, now, nextUpdatedOn(prev, now, time.Microsecond))
	})

	t.Run("clock did not move", func(t *testing.T) {
		assert.Equal(t, prev.Add(time.Microsecond), nextUpdatedOn(prev, prev, time.Microsecond))
	})

	t.Run("clock went backwards", func(t *testing.T) {
		now := prev.Add(-time.Hour)
		assert.Equal(t, prev.Add(time.Millisecond), nextUpdatedOn(prev, now, time.Millisecond))
	})

	t.Run("sub-resolution movement is truncated", func(t *testing.T) {
		now := prev.Add(300 * time.Microsecond)
		assert.Equal(t, prev.Add(time.Millisecond), nextUpdatedOn(prev, now, time.Millisecond))
	})
}

func TestFormatTime_SortsLexicographically(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	times := []time.Time{
		base.Add(time.Second),
		base,
		base.Add(10 * time.Microsecond),
		base.Add(100 * time.Millisecond),
		base.Add(time.Microsecond),
	}

	formatted := make([]string, len(times))
	for i, tm := range times {
		formatted[i] = formatTime(tm)
	}
	sort.Strings(formatted)

	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	for i, tm := range times {
		parsed, err := parseTime(formatted[i])
		assert.NoError(t, err)
		assert.True(t, tm.Equal(parsed), "index %d: want %s, got %s", i, tm, parsed)
	}
}
