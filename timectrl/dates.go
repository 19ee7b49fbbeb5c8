package timectrl

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DateLayout is the calendar-date layout used for day keys and labels.
const DateLayout = "2006-01-02"

// TruncateToDate returns the calendar-date portion (first 10 characters) of an
// ISO-8601 timestamp. Shorter strings, including "", are returned unchanged.
func TruncateToDate(iso string) string {
	if len(iso) < len(DateLayout) {
		return iso
	}
	return iso[:len(DateLayout)]
}

// ParseDate parses the calendar-date portion of s as a UTC midnight.
func ParseDate(s string) (time.Time, error) {
	day := TruncateToDate(strings.TrimSpace(s))
	t, err := time.Parse(DateLayout, day)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// MidnightUTC normalises t to the start of its UTC calendar day.
func MidnightUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayOffset returns the 1-based day offset of candidate relative to start:
// the start date itself is day 1. Row indices into a result are 0-based, so
// the row for offset n is index n-1.
func DayOffset(candidate, start time.Time) int {
	diff := MidnightUTC(candidate).Sub(MidnightUTC(start))
	return int(math.Floor(diff.Hours()/24)) + 1
}

// DateAtIndex returns the calendar date of the 0-based row index i.
func DateAtIndex(start time.Time, i int) time.Time {
	return MidnightUTC(start).AddDate(0, 0, i)
}
