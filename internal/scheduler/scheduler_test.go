package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseIntervalDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"15m": 15 * time.Minute,
		"1h":  time.Hour,
		"4h":  4 * time.Hour,
		"1d":  24 * time.Hour,
		"1w":  7 * 24 * time.Hour,
		" 5M": 5 * time.Minute,
	}
	for in, want := range cases {
		got, ok := ParseIntervalDuration(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "m", "0m", "-5m", "15x", "abc"} {
		_, ok := ParseIntervalDuration(bad)
		assert.False(t, ok, bad)
	}
}

func TestNextTimesAlignsToBoundary(t *testing.T) {
	s := &AlignedScheduler{Interval: 15 * time.Minute, Offset: 5 * time.Second}
	now := time.Date(2025, 6, 1, 12, 7, 30, 0, time.UTC)

	boundary, wakeAt, wait := s.nextTimes(now)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 15, 0, 0, time.UTC), boundary)
	assert.Equal(t, boundary.Add(5*time.Second), wakeAt)
	assert.Equal(t, wakeAt.Sub(now), wait)
}
