package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gymops/gymops/internal/shared"
)

var (
	// ErrMultipleActive indicates more than one open-ended schedule.
	ErrMultipleActive = errors.New("schedule: more than one active schedule")
	// ErrInvalidBounds indicates unparsable or inverted schedule dates.
	ErrInvalidBounds = errors.New("schedule: invalid schedule bounds")
	// ErrInvalidTemplate indicates a malformed session template.
	ErrInvalidTemplate = errors.New("schedule: invalid session template")
)

// Schedule is a recurring weekly timetable valid over an inclusive date range.
type Schedule struct {
	ID        string                        `json:"id"`
	Name      string                        `json:"name,omitempty"`
	StartDate string                        `json:"startDate"`
	EndDate   string                        `json:"endDate,omitempty"`
	Sessions  map[Weekday][]SessionTemplate `json:"sessions"`
}

// IsActive reports whether the schedule is open-ended.
func (s Schedule) IsActive() bool {
	return strings.TrimSpace(s.EndDate) == ""
}

// bounds parses the schedule range; ok is false when either bound is malformed.
func (s Schedule) bounds() (start, end time.Time, open, ok bool) {
	start, err := shared.ParseDate(s.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, false, false
	}
	if s.IsActive() {
		return start, time.Time{}, true, true
	}
	end, err = shared.ParseDate(s.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, false, false
	}
	return start, end, false, true
}

// Contains reports whether date falls inside the schedule range. Malformed bounds never match.
func (s Schedule) Contains(date time.Time) bool {
	start, end, open, ok := s.bounds()
	if !ok {
		return false
	}
	day := shared.Day(date)
	if day.Before(start) {
		return false
	}
	return open || !day.After(end)
}

// Catalog is the ordered collection of timetables.
type Catalog []Schedule

// Active returns the open-ended schedule, if any.
func (c Catalog) Active() (Schedule, bool) {
	for _, s := range c {
		if s.IsActive() {
			return s, true
		}
	}
	return Schedule{}, false
}

// EarliestStart returns the earliest well-formed start date in the catalog.
func (c Catalog) EarliestStart() (time.Time, bool) {
	var earliest time.Time
	found := false
	for _, s := range c {
		start, _, _, ok := s.bounds()
		if !ok {
			continue
		}
		if !found || start.Before(earliest) {
			earliest = start
			found = true
		}
	}
	return earliest, found
}

// Validate checks the catalog invariants enforced when staff save timetables.
func (c Catalog) Validate() error {
	active := 0
	for _, s := range c {
		start, end, open, ok := s.bounds()
		if !ok {
			return fmt.Errorf("%w: schedule %s", ErrInvalidBounds, s.ID)
		}
		if !open && end.Before(start) {
			return fmt.Errorf("%w: schedule %s ends before it starts", ErrInvalidBounds, s.ID)
		}
		if open {
			active++
		}
		for day, templates := range s.Sessions {
			if !day.Valid() {
				return fmt.Errorf("%w: schedule %s day %d", ErrInvalidWeekday, s.ID, int(day))
			}
			for _, tpl := range templates {
				if _, err := time.Parse("15:04", StartTime(tpl.Time)); err != nil {
					return fmt.Errorf("%w: schedule %s %s time %q", ErrInvalidTemplate, s.ID, day, tpl.Time)
				}
				if strings.TrimSpace(tpl.Program) == "" {
					return fmt.Errorf("%w: schedule %s %s %s has no program", ErrInvalidTemplate, s.ID, day, tpl.Time)
				}
			}
		}
	}
	if active > 1 {
		return ErrMultipleActive
	}
	return nil
}

// StartTime strips all whitespace from a time label and keeps what precedes the first '-',
// so "10:00 - 11:00" and "10:00\n" both yield "10:00".
func StartTime(raw string) string {
	cleaned := strings.Join(strings.Fields(raw), "")
	if i := strings.IndexByte(cleaned, '-'); i >= 0 {
		cleaned = cleaned[:i]
	}
	return cleaned
}
