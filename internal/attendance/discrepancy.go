package attendance

import "sort"

// Discrepancy is a calendar slot whose scheduled program disagrees with the attendance log.
type Discrepancy struct {
	Date            string   `json:"date"`
	Time            string   `json:"time"`
	Center          string   `json:"center,omitempty"`
	GymProgram      string   `json:"gymProgram"`
	CalendarProgram string   `json:"calendarProgram"`
	Count           int      `json:"count"`
	Members         []string `json:"members"`
}

type slotKey struct {
	date   string
	time   string
	center string
}

// DiscrepancyLog coalesces discrepancies per (date, time, center). The zero value is ready to use.
type DiscrepancyLog struct {
	index   map[slotKey]int
	entries []Discrepancy
}

// Add records res when it is a discrepancy and reports whether it was recorded.
func (l *DiscrepancyLog) Add(res Result, memberName string) bool {
	if !res.InCalendar || !res.Discrepant {
		return false
	}
	if l.index == nil {
		l.index = make(map[slotKey]int)
	}
	key := slotKey{date: res.Record.Date, time: res.Time, center: res.Center}
	i, ok := l.index[key]
	if !ok {
		l.index[key] = len(l.entries)
		l.entries = append(l.entries, Discrepancy{
			Date:            res.Record.Date,
			Time:            res.Time,
			Center:          res.Center,
			GymProgram:      res.Record.Activity,
			CalendarProgram: res.CanonicalProgram,
		})
		i = len(l.entries) - 1
	}
	entry := &l.entries[i]
	entry.Count++
	if memberName != "" && !contains(entry.Members, memberName) {
		entry.Members = append(entry.Members, memberName)
	}
	return true
}

// Len returns the number of coalesced slots.
func (l *DiscrepancyLog) Len() int {
	return len(l.entries)
}

// Sorted returns a copy of the entries ordered by date, then time, then center.
func (l *DiscrepancyLog) Sorted() []Discrepancy {
	out := make([]Discrepancy, len(l.entries))
	for i, e := range l.entries {
		e.Members = append([]string(nil), e.Members...)
		out[i] = e
	}
	SortDiscrepancies(out)
	return out
}

// SortDiscrepancies orders list ascending by date, then time, then center.
func SortDiscrepancies(list []Discrepancy) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		return a.Center < b.Center
	})
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
