package report

import "time"

// WeekStart returns Monday 00:00 of the calendar week containing t, in t's location.
func WeekStart(t time.Time) time.Time {
	daysSinceMonday := (int(t.Weekday()) + 6) % 7
	return time.Date(t.Year(), t.Month(), t.Day()-daysSinceMonday, 0, 0, 0, 0, t.Location())
}

// InCurrentWeek reports whether created falls in the calendar week of now.
func InCurrentWeek(created, now time.Time) bool {
	return !created.Before(WeekStart(now))
}
