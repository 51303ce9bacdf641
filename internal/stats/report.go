// Package stats derives the dashboard statistics from the resolved calendar and the reconciled
// attendance logs. Every function is a pure computation over its inputs.
package stats

import (
	"math"
	"time"

	"github.com/gymops/gymops/internal/attendance"
	"github.com/gymops/gymops/internal/members"
	"github.com/gymops/gymops/internal/schedule"
)

// DefaultTopN is the size of the top and bottom user lists when Input.TopN is unset.
const DefaultTopN = 10

// Trend is the direction of the monthly attendance average between the two latest years.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// Slot buckets a class start time into a part of the day.
type Slot string

const (
	SlotMorning   Slot = "morning"
	SlotAfternoon Slot = "afternoon"
	SlotEvening   Slot = "evening"
	SlotNone      Slot = "N/A"
)

// Input bundles the snapshots a report is computed from.
type Input struct {
	Roster     []members.Member
	Reconciled attendance.Reconciliation
	Catalog    schedule.Catalog
	Resolver   *schedule.Resolver
	// Center restricts the report to one center; empty means all centers.
	Center string
	Now    time.Time
	TopN   int
}

// UserCount is an entry of the top and bottom user lists.
type UserCount struct {
	MemberID string `json:"memberId"`
	Name     string `json:"name"`
	Sessions int    `json:"sessions"`
}

// Report is the aggregate view rendered by the statistics dashboard.
type Report struct {
	Center                string                   `json:"center,omitempty"`
	TotalSessions         int                      `json:"totalSessions"`
	TotalAttendances      int                      `json:"totalAttendances"`
	AvgAttendeesPerClass  float64                  `json:"avgAttendeesPerClass"`
	RetentionRate         float64                  `json:"retentionRate"`
	YearlyTrend           Trend                    `json:"yearlyTrend"`
	MonthlyGrowth         float64                  `json:"monthlyGrowth"`
	PreferredTimeSlot     Slot                     `json:"preferredTimeSlot"`
	CalendarDiscrepancies []attendance.Discrepancy `json:"calendarDiscrepancies"`

	ByYear          map[string]int `json:"byYear"`
	ByMonth         map[string]int `json:"byMonth"`
	ByProgram       map[string]int `json:"byProgram"`
	ByCenter        map[string]int `json:"byCenter"`
	TopUsers        []UserCount    `json:"topUsers"`
	BottomUsers     []UserCount    `json:"bottomUsers"`
	InCalendarRate  float64        `json:"inCalendarRate"`
	UnknownPrograms []string       `json:"unknownPrograms"`
	GeneratedAt     time.Time      `json:"generatedAt"`
}

// Aggregate computes the report for in. The same input always yields the same report.
func Aggregate(in Input) Report {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	topN := in.TopN
	if topN <= 0 {
		topN = DefaultTopN
	}
	results := in.Reconciled.Results(in.Center)

	report := Report{
		Center:                in.Center,
		TotalSessions:         TotalSessions(in.Catalog, in.Resolver, in.Center, now),
		TotalAttendances:      len(results),
		AvgAttendeesPerClass:  AvgAttendeesPerClass(results),
		RetentionRate:         RetentionRate(in.Roster, in.Center),
		YearlyTrend:           YearlyTrend(results, now),
		MonthlyGrowth:         MonthlyGrowth(results, now),
		PreferredTimeSlot:     PreferredTimeSlot(results),
		CalendarDiscrepancies: in.Reconciled.DiscrepanciesAt(in.Center),
		InCalendarRate:        InCalendarRate(results),
		UnknownPrograms:       UnknownPrograms(results),
		GeneratedAt:           now.UTC(),
	}
	report.ByYear, report.ByMonth, report.ByProgram, report.ByCenter = breakdowns(results)
	report.TopUsers, report.BottomUsers = rankUsers(in.Roster, in.Center, topN)
	return report
}

// TotalSessions counts the non-deleted sessions resolved from the earliest schedule start through
// now. Sessions without a center count for every center filter.
func TotalSessions(catalog schedule.Catalog, resolver *schedule.Resolver, center string, now time.Time) int {
	if resolver == nil {
		return 0
	}
	start, ok := catalog.EarliestStart()
	if !ok {
		return 0
	}
	total := 0
	for _, day := range resolver.ResolveRange(start, now) {
		for _, s := range day.Sessions {
			if s.IsDeleted() {
				continue
			}
			if center != "" && s.Center != "" && s.Center != center {
				continue
			}
			total++
		}
	}
	return total
}

// RetentionRate is the share of members with more than one session, in percent. With a center
// filter only members who attended that center are considered.
func RetentionRate(roster []members.Member, center string) float64 {
	considered, retained := 0, 0
	for _, m := range roster {
		n := len(m.SessionsAt(center))
		if center != "" && n == 0 {
			continue
		}
		considered++
		if n > 1 {
			retained++
		}
	}
	return percent(retained, considered)
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return round1(float64(part) / float64(whole) * 100)
}

func round1(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*10) / 10
}
