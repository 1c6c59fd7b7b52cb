// Package timeutil provides the calendar arithmetic used for KT reminders:
// business-day rollover and fixed-length reminder windows in a configured
// timezone.
package timeutil

import (
	"fmt"
	"time"
)

// Clock returns the current time. Handlers take one so tests can pin time.
type Clock func() time.Time

// SystemClock returns time.Now in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}

// FixedClock returns a Clock that always reports t.
func FixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

// LoadLocation resolves a timezone name, falling back to UTC.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// StartOfDay returns 00:00:00 of t's day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, loc)
}

// IsWeekend checks if t falls on Saturday or Sunday in loc.
func IsWeekend(t time.Time, loc *time.Location) bool {
	wd := t.In(loc).Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// NextWorkday returns t if it is a workday, otherwise the following Monday
// at the same wall-clock time.
func NextWorkday(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	for IsWeekend(l, loc) {
		l = l.AddDate(0, 0, 1)
	}
	return l
}

// Window is a reminder time range.
type Window struct {
	Start time.Time
	End   time.Time
}

// Duration returns the window length.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// String formats the window as RFC3339 start/end.
func (w Window) String() string {
	return fmt.Sprintf("%s/%s", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

// ReminderWindow returns a window that starts lead after now at startHour
// local time, moved forward to a workday, and lasts length.
func ReminderWindow(now time.Time, lead, length time.Duration, startHour int, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	if startHour < 0 || startHour > 23 {
		startHour = 10
	}
	day := StartOfDay(now.Add(lead), loc)
	start := time.Date(day.Year(), day.Month(), day.Day(), startHour, 0, 0, 0, loc)
	start = NextWorkday(start, loc)
	return Window{Start: start, End: start.Add(length)}
}
