package attendance

import (
	"github.com/gymops/gymops/internal/members"
	"github.com/gymops/gymops/internal/schedule"
)

// MemberResult pairs a member with the reconciliation of each of its records, in record order.
type MemberResult struct {
	Member  members.Member `json:"member"`
	Results []Result       `json:"results"`
}

// Reconciliation is the batch outcome over a member roster.
type Reconciliation struct {
	Members       []MemberResult `json:"members"`
	Discrepancies []Discrepancy  `json:"discrepancies"`
}

// Reconciler runs Reconcile over whole rosters.
type Reconciler struct {
	resolve ResolveFunc
}

// NewReconciler builds a Reconciler over resolve.
func NewReconciler(resolve ResolveFunc) *Reconciler {
	return &Reconciler{resolve: resolve}
}

// ReconcileMembers reconciles every record of every member. Resolutions are memoised per date
// for the duration of the call only, so each call reflects the resolver it was given.
func (r *Reconciler) ReconcileMembers(roster []members.Member) Reconciliation {
	memo := make(map[string][]schedule.Session)
	resolve := func(date string) []schedule.Session {
		if sessions, ok := memo[date]; ok {
			return sessions
		}
		var sessions []schedule.Session
		if r.resolve != nil {
			sessions = r.resolve(date)
		}
		memo[date] = sessions
		return sessions
	}

	var log DiscrepancyLog
	out := Reconciliation{Members: make([]MemberResult, 0, len(roster))}
	for _, m := range roster {
		mr := MemberResult{Member: m, Results: make([]Result, 0, len(m.Sessions))}
		for _, rec := range m.Sessions {
			res := match(rec, resolve(rec.Date))
			log.Add(res, m.Name)
			mr.Results = append(mr.Results, res)
		}
		out.Members = append(out.Members, mr)
	}
	out.Discrepancies = log.Sorted()
	return out
}

// Results flattens every member result whose record was logged at center; an empty center keeps
// them all.
func (r Reconciliation) Results(center string) []Result {
	var out []Result
	for _, mr := range r.Members {
		for _, res := range mr.Results {
			if center == "" || res.Record.Center == center {
				out = append(out, res)
			}
		}
	}
	return out
}

// DiscrepanciesAt filters discrepancies by center; an empty center keeps them all.
func (r Reconciliation) DiscrepanciesAt(center string) []Discrepancy {
	out := make([]Discrepancy, 0, len(r.Discrepancies))
	for _, d := range r.Discrepancies {
		if center == "" || d.Center == center {
			out = append(out, d)
		}
	}
	return out
}

// Member looks up the reconciled entry for a member id.
func (r Reconciliation) Member(id string) (MemberResult, bool) {
	for _, mr := range r.Members {
		if mr.Member.ID == id {
			return mr, true
		}
	}
	return MemberResult{}, false
}
