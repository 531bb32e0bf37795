package credits

import "time"

// CalendarDay returns t's date in loc as "2006-01-02".
func CalendarDay(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(time.DateOnly)
}

// NeedsReset reports whether last falls on an earlier calendar day than now
// in loc. A last update in the future never triggers a reset.
func NeedsReset(last, now time.Time, loc *time.Location) bool {
	return CalendarDay(last, loc) < CalendarDay(now, loc)
}
