// Package interval provides the half-open time-interval arithmetic the
// slot generator and availability calculator are built on. All intervals
// are [start, end): a slot ending at 10:00 does not overlap one starting
// at 10:00.
package interval

import "time"

// TimeRange is a half-open interval [Start, End).
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// OverlapsAny reports whether [start, end) intersects any of busy.
func OverlapsAny(start, end time.Time, busy []TimeRange) bool {
	for _, b := range busy {
		if Overlaps(start, end, b.Start, b.End) {
			return true
		}
	}
	return false
}

// Contiguous reports whether the ranges, already sorted by Start, form an
// unbroken run: each range starts exactly where the previous one ends.
// Empty and single-element inputs are contiguous.
func Contiguous(ranges []TimeRange) bool {
	for i := 1; i < len(ranges); i++ {
		if !ranges[i-1].End.Equal(ranges[i].Start) {
			return false
		}
	}
	return true
}

// At combines a calendar date with a wall-clock "HH:MM" offset in loc.
// Hour and minute outside their normal ranges are normalized by time.Date.
func At(date time.Time, hour, minute int, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, loc)
}

// LocalHHMM formats t's wall-clock time in loc as "HH:MM", the shape
// ServiceTimeRule allowed-start-times are expressed in.
func LocalHHMM(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("15:04")
}

// DateOnly truncates t to midnight of its calendar date in loc.
func DateOnly(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
