package interval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(h, m int) time.Time {
	return time.Date(2026, 3, 10, h, m, 0, 0, time.UTC)
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name                           string
		aStart, aEnd, bStart, bEnd     time.Time
		want                           bool
	}{
		{"disjoint before", at(9, 0), at(10, 0), at(11, 0), at(12, 0), false},
		{"disjoint after", at(11, 0), at(12, 0), at(9, 0), at(10, 0), false},
		{"touching edges do not overlap", at(9, 0), at(10, 0), at(10, 0), at(11, 0), false},
		{"partial overlap", at(9, 0), at(10, 30), at(10, 0), at(11, 0), true},
		{"contained", at(9, 0), at(12, 0), at(10, 0), at(11, 0), true},
		{"identical", at(9, 0), at(10, 0), at(9, 0), at(10, 0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overlaps(tt.aStart, tt.aEnd, tt.bStart, tt.bEnd))
		})
	}
}

func TestOverlapsAny(t *testing.T) {
	busy := []TimeRange{
		{Start: at(12, 0), End: at(13, 0)},
		{Start: at(15, 30), End: at(16, 0)},
	}
	assert.False(t, OverlapsAny(at(9, 0), at(10, 0), busy))
	assert.True(t, OverlapsAny(at(12, 30), at(13, 30), busy))
	assert.True(t, OverlapsAny(at(15, 0), at(17, 0), busy))
	assert.False(t, OverlapsAny(at(13, 0), at(15, 30), busy))
}

func TestContiguous(t *testing.T) {
	assert.True(t, Contiguous(nil))
	assert.True(t, Contiguous([]TimeRange{{Start: at(9, 0), End: at(10, 0)}}))
	assert.True(t, Contiguous([]TimeRange{
		{Start: at(9, 0), End: at(10, 0)},
		{Start: at(10, 0), End: at(11, 0)},
		{Start: at(11, 0), End: at(12, 0)},
	}))
	assert.False(t, Contiguous([]TimeRange{
		{Start: at(9, 0), End: at(10, 0)},
		{Start: at(11, 0), End: at(12, 0)},
	}))
}

func TestLocalHHMM(t *testing.T) {
	santiago, err := time.LoadLocation("America/Santiago")
	assert.NoError(t, err)

	// 13:00 UTC is 10:00 in Santiago during Chilean daylight time (UTC-3).
	utc := time.Date(2026, 1, 15, 13, 0, 0, 0, time.UTC)
	assert.Equal(t, "10:00", LocalHHMM(utc, santiago))
	assert.Equal(t, "13:00", LocalHHMM(utc, time.UTC))
}

func TestDateOnly(t *testing.T) {
	loc := time.UTC
	d := DateOnly(time.Date(2026, 3, 10, 17, 45, 12, 0, loc), loc)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, loc), d)
}
