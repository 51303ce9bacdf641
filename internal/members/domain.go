// Package members models gym members and their raw attendance logs.
package members

import (
	"sort"
	"time"

	"github.com/gymops/gymops/internal/shared"
)

// Record is one raw attendance log line as imported from the access system.
type Record struct {
	Date     string `json:"date"`
	Activity string `json:"activity"`
	Time     string `json:"time"`
	Sala     string `json:"sala,omitempty"`
	Center   string `json:"center,omitempty"`
}

// ProgramRank is a member's standing among the attendees of one program at one center.
type ProgramRank struct {
	Sessions   int `json:"sessions"`
	Rank       int `json:"rank"`
	Percentile int `json:"percentile"`
	Total      int `json:"total"`
}

// RankingCache is the advisory ranking snapshot persisted on the member by the ranking job.
type RankingCache struct {
	TotalSessions    int                               `json:"totalSessions"`
	GlobalRank       int                               `json:"globalRank"`
	GlobalPercentile int                               `json:"globalPercentile"`
	TotalMembers     int                               `json:"totalMembers"`
	Programs         map[string]map[string]ProgramRank `json:"programs,omitempty"`
	ComputedAt       time.Time                         `json:"computedAt"`
}

// Member is a gym member with the derived attendance counters the dashboard displays.
type Member struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Sessions []Record `json:"sessions"`

	TotalSessions        int    `json:"totalSessions"`
	FirstSession         string `json:"firstSession,omitempty"`
	LastSession          string `json:"lastSession,omitempty"`
	DaysSinceLastSession int    `json:"daysSinceLastSession"`

	RankingCache *RankingCache `json:"rankingCache,omitempty"`
}

// Recompute refreshes the derived counters from Sessions. Records with malformed dates count
// towards TotalSessions but never become the first or last session.
//
// Days since the last session is the elapsed duration divided by 24h, truncated. No timezone
// normalisation is applied, so a DST transition between the two instants can shift the value
// by one around midnight.
func (m *Member) Recompute(now time.Time) {
	m.TotalSessions = len(m.Sessions)
	m.FirstSession, m.LastSession = "", ""
	m.DaysSinceLastSession = 0

	var first, last time.Time
	for _, rec := range m.Sessions {
		day, err := shared.ParseDate(rec.Date)
		if err != nil {
			continue
		}
		if first.IsZero() || day.Before(first) {
			first = day
		}
		if last.IsZero() || day.After(last) {
			last = day
		}
	}
	if last.IsZero() {
		return
	}
	m.FirstSession = shared.DateKey(first)
	m.LastSession = shared.DateKey(last)
	if elapsed := now.Sub(last); elapsed > 0 {
		m.DaysSinceLastSession = int(elapsed / (24 * time.Hour))
	}
}

// SessionsAt returns the records logged at center; an empty center returns every record.
func (m Member) SessionsAt(center string) []Record {
	if center == "" {
		return m.Sessions
	}
	out := make([]Record, 0, len(m.Sessions))
	for _, rec := range m.Sessions {
		if rec.Center == center {
			out = append(out, rec)
		}
	}
	return out
}

// SortByID orders members by id, the canonical input order of the ranking job.
func SortByID(list []Member) {
	sort.SliceStable(list, func(i, j int) bool { return list[i].ID < list[j].ID })
}
