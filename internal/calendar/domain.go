// Package calendar holds the exception days (official holidays, general vacations and per-center
// closures) and the per-center working configuration that frame the class timetable.
package calendar

import (
	"errors"
	"sort"
	"strings"
)

// Kind enumerates the independent exception sets.
type Kind string

const (
	// KindHoliday marks an official holiday.
	KindHoliday Kind = "holiday"
	// KindVacation marks a general vacation day.
	KindVacation Kind = "vacation"
	// KindClosure marks a closure of a single center.
	KindClosure Kind = "closure"
)

// ErrUnknownKind is returned when a stored exception set carries an unsupported kind.
var ErrUnknownKind = errors.New("calendar: unknown exception kind")

// ParseKind validates a stored kind label.
func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindHoliday:
		return KindHoliday, nil
	case KindVacation:
		return KindVacation, nil
	case KindClosure:
		return KindClosure, nil
	default:
		return "", ErrUnknownKind
	}
}

// ExceptionDate is a single day without generated classes.
type ExceptionDate struct {
	Date   string `json:"date"`
	Reason string `json:"reason"`
}

// Exceptions groups the three exception sets of one fiscal year as stored.
type Exceptions struct {
	Year      int                        `json:"year"`
	Holidays  []ExceptionDate            `json:"holidays"`
	Vacations []ExceptionDate            `json:"vacations"`
	Closures  map[string][]ExceptionDate `json:"closures"`
}

// Hit describes why a date is an exception.
type Hit struct {
	Kind     Kind   `json:"kind"`
	Reason   string `json:"reason,omitempty"`
	CenterID string `json:"centerId,omitempty"`
}

// Calendar indexes one or more fiscal years of exceptions for date lookups.
type Calendar struct {
	holidays  map[string]ExceptionDate
	vacations map[string]ExceptionDate
	closures  map[string]map[string]ExceptionDate
	centers   []string
}

// NewCalendar merges the provided exception sets into a lookup index.
func NewCalendar(sets ...Exceptions) *Calendar {
	c := &Calendar{
		holidays:  make(map[string]ExceptionDate),
		vacations: make(map[string]ExceptionDate),
		closures:  make(map[string]map[string]ExceptionDate),
	}
	for _, set := range sets {
		for _, d := range set.Holidays {
			c.holidays[d.Date] = d
		}
		for _, d := range set.Vacations {
			c.vacations[d.Date] = d
		}
		for centerID, days := range set.Closures {
			idx, ok := c.closures[centerID]
			if !ok {
				idx = make(map[string]ExceptionDate)
				c.closures[centerID] = idx
				c.centers = append(c.centers, centerID)
			}
			for _, d := range days {
				idx[d.Date] = d
			}
		}
	}
	sort.Strings(c.centers)
	return c
}

// Lookup reports the first exception matching date, checking holidays, then vacations, then
// closures in center id order.
func (c *Calendar) Lookup(date string) (Hit, bool) {
	if c == nil {
		return Hit{}, false
	}
	if d, ok := c.holidays[date]; ok {
		return Hit{Kind: KindHoliday, Reason: d.Reason}, true
	}
	if d, ok := c.vacations[date]; ok {
		return Hit{Kind: KindVacation, Reason: d.Reason}, true
	}
	for _, centerID := range c.centers {
		if d, ok := c.closures[centerID][date]; ok {
			return Hit{Kind: KindClosure, Reason: d.Reason, CenterID: centerID}, true
		}
	}
	return Hit{}, false
}

// IsException reports whether date is a holiday, a vacation day or a closure of any center.
func (c *Calendar) IsException(date string) bool {
	_, ok := c.Lookup(date)
	return ok
}

// ClosedFor reports whether a specific center has no classes on date.
func (c *Calendar) ClosedFor(centerID, date string) bool {
	if c == nil {
		return false
	}
	if _, ok := c.holidays[date]; ok {
		return true
	}
	if _, ok := c.vacations[date]; ok {
		return true
	}
	_, ok := c.closures[centerID][date]
	return ok
}

// IsVacation reports whether date is a general vacation day.
func (c *Calendar) IsVacation(date string) bool {
	if c == nil {
		return false
	}
	_, ok := c.vacations[date]
	return ok
}
