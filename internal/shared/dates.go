package shared

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the canonical layout of every date key exchanged with the document store.
const DateLayout = "2006-01-02"

// ErrInvalidDate indicates a date key that is not a valid YYYY-MM-DD string.
var ErrInvalidDate = errors.New("invalid date key")

// ParseDate parses a YYYY-MM-DD key into a UTC midnight timestamp.
func ParseDate(key string) (time.Time, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return time.Time{}, ErrInvalidDate
	}
	t, err := time.Parse(DateLayout, key)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, key)
	}
	return t, nil
}

// DateKey formats the calendar day of t (in t's own location) as YYYY-MM-DD.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// Day truncates t to the calendar day in its own location and re-anchors it at UTC midnight,
// so that day arithmetic never crosses a DST boundary.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ISOWeekday maps t's weekday to Monday=1 … Sunday=7.
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// MonthKey formats t as YYYY-MM.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}
