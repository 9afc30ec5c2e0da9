package domain

import "time"

// DateOf reduces t to its calendar date in loc, returned as 00:00 UTC so that
// dates from different zones compare by day only.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// AddMonthsClamped adds whole calendar months to date, keeping the day of
// month and clamping it to the length of the target month (Jan 31 + 1 = Feb 28/29).
func AddMonthsClamped(date time.Time, months int) time.Time {
	date = DateOf(date, time.UTC)
	firstOfTarget := time.Date(date.Year(), date.Month()+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	day := date.Day()
	if last := daysIn(firstOfTarget.Year(), firstOfTarget.Month()); day > last {
		day = last
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, 0, 0, 0, 0, time.UTC)
}

// OnOrAfter reports whether calendar date a is the same day as b or later.
func OnOrAfter(a time.Time, b time.Time) bool {
	return !DateOf(a, time.UTC).Before(DateOf(b, time.UTC))
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
