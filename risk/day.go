package risk

import "time"

// All "per day" semantics in this package use a single reference timezone's
// calendar date, independent of any per-user display timezone.

// DayOpen returns midnight of now's calendar date in loc.
func DayOpen(now time.Time, loc *time.Location) time.Time {
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// NextDayOpen returns the midnight following now in loc. This is the
// "end of reference day" boundary used for loss-streak pauses.
func NextDayOpen(now time.Time, loc *time.Location) time.Time {
	return DayOpen(now, loc).AddDate(0, 0, 1)
}

// SameDay reports whether a and b fall on the same calendar date in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	return DayOpen(a, loc).Equal(DayOpen(b, loc))
}
