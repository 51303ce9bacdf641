package schedule

import (
	"time"

	"github.com/gymops/gymops/internal/calendar"
	"github.com/gymops/gymops/internal/shared"
)

// Source names the precedence level that produced a resolution.
type Source string

const (
	SourceOverride  Source = "override"
	SourceException Source = "exception"
	SourceSchedule  Source = "schedule"
	SourceNone      Source = "none"
)

// Resolution is the explained result of resolving one day.
type Resolution struct {
	Date       string        `json:"date"`
	Source     Source        `json:"source"`
	ScheduleID string        `json:"scheduleId,omitempty"`
	Exception  *calendar.Hit `json:"exception,omitempty"`
	Sessions   []Session     `json:"sessions"`
}

type catalogEntry struct {
	start    time.Time
	end      time.Time
	open     bool
	schedule Schedule
}

// Resolver composes timetables, exception days and overrides under a fixed precedence:
// override, then exception, then the most recently started timetable covering the day.
// It holds no mutable state and is safe for concurrent use.
type Resolver struct {
	entries    []catalogEntry
	exceptions *calendar.Calendar
	overrides  Overrides
}

// NewResolver indexes the inputs. Schedules with malformed bounds are left out.
func NewResolver(catalog Catalog, exceptions *calendar.Calendar, overrides Overrides) *Resolver {
	entries := make([]catalogEntry, 0, len(catalog))
	for _, s := range catalog {
		start, end, open, ok := s.bounds()
		if !ok {
			continue
		}
		entries = append(entries, catalogEntry{start: start, end: end, open: open, schedule: s})
	}
	return &Resolver{entries: entries, exceptions: exceptions, overrides: overrides}
}

// Resolve returns the session list for a YYYY-MM-DD key. Override lists are returned verbatim,
// soft-deleted entries included.
func (r *Resolver) Resolve(date string) []Session {
	return r.Explain(date).Sessions
}

// ResolveTime resolves the calendar day of t.
func (r *Resolver) ResolveTime(t time.Time) []Session {
	return r.Resolve(shared.DateKey(t))
}

// Explain resolves date and reports which source produced the list.
func (r *Resolver) Explain(date string) Resolution {
	res := Resolution{Date: date, Source: SourceNone, Sessions: []Session{}}
	if list, ok := r.overrides[date]; ok {
		res.Source = SourceOverride
		res.Sessions = append(res.Sessions, list...)
		return res
	}
	if hit, ok := r.exceptions.Lookup(date); ok {
		res.Source = SourceException
		res.Exception = &hit
		return res
	}
	day, err := shared.ParseDate(date)
	if err != nil {
		return res
	}
	entry, ok := r.scheduleFor(day)
	if !ok {
		return res
	}
	res.Source = SourceSchedule
	res.ScheduleID = entry.schedule.ID
	for _, tpl := range entry.schedule.Sessions[WeekdayOf(day)] {
		res.Sessions = append(res.Sessions, Generate(tpl))
	}
	return res
}

// scheduleFor picks the covering schedule with the latest start; on equal starts the one
// later in catalog order wins.
func (r *Resolver) scheduleFor(day time.Time) (catalogEntry, bool) {
	var best catalogEntry
	found := false
	for _, e := range r.entries {
		if day.Before(e.start) || (!e.open && day.After(e.end)) {
			continue
		}
		if !found || !e.start.Before(best.start) {
			best = e
			found = true
		}
	}
	return best, found
}

// ResolveRange explains every day in [from, to], both inclusive.
func (r *Resolver) ResolveRange(from, to time.Time) []Resolution {
	start, end := shared.Day(from), shared.Day(to)
	if end.Before(start) {
		return nil
	}
	out := make([]Resolution, 0, int(end.Sub(start).Hours()/24)+1)
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		out = append(out, r.Explain(shared.DateKey(day)))
	}
	return out
}
