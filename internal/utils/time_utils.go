package utils

import (
	"fmt"
	"time"
)

// DateLayout is the local calendar date format used across session and daily
// attendance rows.
const DateLayout = "2006-01-02"

// ClockLayout is the shift timing format ("09:00").
const ClockLayout = "15:04"

// MinutesOfDay parses a "15:04" clock string into minutes since midnight.
func MinutesOfDay(clock string) (int, error) {
	t, err := time.Parse(ClockLayout, clock)
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q: %w", clock, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// TimeMinutesOfDay returns minutes since midnight for a timestamp in its own
// location.
func TimeMinutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// LocalDate formats a timestamp as the local calendar date string.
func LocalDate(t time.Time) string {
	return t.Format(DateLayout)
}

// DayBounds returns the [start, end) timestamps of the calendar day containing
// t, in t's location.
func DayBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}

// AtClock returns the timestamp on day (a DateLayout string) at the given
// "15:04" clock value in loc.
func AtClock(day, clock string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, day, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date value %q: %w", day, err)
	}
	minutes, err := MinutesOfDay(clock)
	if err != nil {
		return time.Time{}, err
	}
	return d.Add(time.Duration(minutes) * time.Minute), nil
}

// SaturdayOrdinal returns which Saturday of its month t is (1-based), or 0
// when t is not a Saturday.
func SaturdayOrdinal(t time.Time) int {
	if t.Weekday() != time.Saturday {
		return 0
	}
	return (t.Day()-1)/7 + 1
}
