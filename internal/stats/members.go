package stats

import (
	"sort"
	"strconv"
	"time"

	"github.com/gymops/gymops/internal/attendance"
	"github.com/gymops/gymops/internal/members"
	"github.com/gymops/gymops/internal/shared"
)

// rankUsers returns the n most and n least active members with at least one session at center.
// Ties are ordered by member id.
func rankUsers(roster []members.Member, center string, n int) (top, bottom []UserCount) {
	counts := make([]UserCount, 0, len(roster))
	for _, m := range roster {
		if c := len(m.SessionsAt(center)); c > 0 {
			counts = append(counts, UserCount{MemberID: m.ID, Name: m.Name, Sessions: c})
		}
	}
	sort.SliceStable(counts, func(i, j int) bool {
		if counts[i].Sessions != counts[j].Sessions {
			return counts[i].Sessions > counts[j].Sessions
		}
		return counts[i].MemberID < counts[j].MemberID
	})
	limit := n
	if limit > len(counts) {
		limit = len(counts)
	}
	top = append([]UserCount{}, counts[:limit]...)

	bottom = make([]UserCount, 0, limit)
	for i := len(counts) - 1; i >= 0 && len(bottom) < limit; i-- {
		bottom = append(bottom, counts[i])
	}
	sort.SliceStable(bottom, func(i, j int) bool {
		if bottom[i].Sessions != bottom[j].Sessions {
			return bottom[i].Sessions < bottom[j].Sessions
		}
		return bottom[i].MemberID < bottom[j].MemberID
	})
	return top, bottom
}

// Profile is the per-member view shown on the member detail page.
type Profile struct {
	MemberID             string                `json:"memberId"`
	Name                 string                `json:"name"`
	TotalSessions        int                   `json:"totalSessions"`
	FirstSession         string                `json:"firstSession,omitempty"`
	LastSession          string                `json:"lastSession,omitempty"`
	DaysSinceLastSession int                   `json:"daysSinceLastSession"`
	FavoriteProgram      string                `json:"favoriteProgram"`
	PreferredTimeSlot    Slot                  `json:"preferredTimeSlot"`
	YearlyTrend          Trend                 `json:"yearlyTrend"`
	InCalendarRate       float64               `json:"inCalendarRate"`
	ByProgram            map[string]int        `json:"byProgram"`
	ByYear               map[string]int        `json:"byYear"`
	Ranking              *members.RankingCache `json:"ranking,omitempty"`
}

// MemberSummary builds the profile of one reconciled member. The member's derived counters are
// recomputed against now on a copy.
func MemberSummary(mr attendance.MemberResult, now time.Time) Profile {
	m := mr.Member
	m.Recompute(now)

	profile := Profile{
		MemberID:             m.ID,
		Name:                 m.Name,
		TotalSessions:        m.TotalSessions,
		FirstSession:         m.FirstSession,
		LastSession:          m.LastSession,
		DaysSinceLastSession: m.DaysSinceLastSession,
		FavoriteProgram:      "N/A",
		PreferredTimeSlot:    PreferredTimeSlot(mr.Results),
		YearlyTrend:          YearlyTrend(mr.Results, now),
		InCalendarRate:       InCalendarRate(mr.Results),
		ByProgram:            make(map[string]int),
		ByYear:               make(map[string]int),
		Ranking:              m.RankingCache,
	}
	for _, r := range mr.Results {
		profile.ByProgram[r.CanonicalProgram]++
		if day, err := shared.ParseDate(r.Record.Date); err == nil {
			profile.ByYear[strconv.Itoa(day.Year())]++
		}
	}
	best := 0
	for program, n := range profile.ByProgram {
		if n > best || (n == best && program < profile.FavoriteProgram) {
			profile.FavoriteProgram, best = program, n
		}
	}
	return profile
}
