// Package attendance reconciles raw member attendance logs against the resolved class calendar.
package attendance

import (
	"github.com/gymops/gymops/internal/members"
	"github.com/gymops/gymops/internal/programs"
	"github.com/gymops/gymops/internal/schedule"
)

// ResolveFunc returns the sessions that took place on a YYYY-MM-DD date.
type ResolveFunc func(date string) []schedule.Session

// Result is the reconciliation outcome of a single attendance record.
type Result struct {
	Record           members.Record `json:"record"`
	Time             string         `json:"time"`
	Center           string         `json:"center,omitempty"`
	CanonicalProgram string         `json:"canonicalProgram"`
	InCalendar       bool           `json:"inCalendar"`
	// Discrepant is set when the matched session's program disagrees with the logged activity.
	Discrepant bool `json:"discrepant"`
}

// Reconcile matches record against the sessions resolved for its date. A session matches when
// its start time equals the record's and the centers agree; a missing center on either side
// matches anything. Soft-deleted sessions never match.
func Reconcile(record members.Record, resolve ResolveFunc) Result {
	var sessions []schedule.Session
	if resolve != nil {
		sessions = resolve(record.Date)
	}
	return match(record, sessions)
}

func match(record members.Record, sessions []schedule.Session) Result {
	start := schedule.StartTime(record.Time)
	res := Result{Record: record, Time: start, Center: record.Center}
	for _, s := range sessions {
		if s.IsDeleted() || schedule.StartTime(s.Time) != start {
			continue
		}
		if record.Center != "" && s.Center != "" && record.Center != s.Center {
			continue
		}
		res.InCalendar = true
		res.CanonicalProgram = s.Program
		if res.Center == "" {
			res.Center = s.Center
		}
		res.Discrepant = programs.Normalize(s.Program) != programs.Normalize(record.Activity)
		break
	}
	if !res.InCalendar {
		res.CanonicalProgram = programs.Normalize(record.Activity)
	}
	if res.CanonicalProgram == "" {
		res.CanonicalProgram = programs.Unknown
	}
	return res
}
