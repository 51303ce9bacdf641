// Package ranking computes the advisory per-member ranking cache and persists it in batches.
package ranking

import (
	"math"
	"sort"
	"time"

	"github.com/gymops/gymops/internal/attendance"
	"github.com/gymops/gymops/internal/members"
)

// NoCenter groups attendances logged without a center in per-program rankings.
const NoCenter = "-"

// Entry is the ranking input of one member.
type Entry struct {
	MemberID string
	Total    int
	// Programs counts sessions per canonical program and center.
	Programs map[string]map[string]int
}

// EntriesFrom derives ranking entries from a reconciliation, ordered by member id.
func EntriesFrom(rec attendance.Reconciliation) []Entry {
	entries := make([]Entry, 0, len(rec.Members))
	for _, mr := range rec.Members {
		e := Entry{MemberID: mr.Member.ID, Total: len(mr.Member.Sessions), Programs: make(map[string]map[string]int)}
		for _, r := range mr.Results {
			center := r.Center
			if center == "" {
				center = NoCenter
			}
			if e.Programs[r.CanonicalProgram] == nil {
				e.Programs[r.CanonicalProgram] = make(map[string]int)
			}
			e.Programs[r.CanonicalProgram][center]++
		}
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].MemberID < entries[j].MemberID })
	return entries
}

// Percentile is round(((total - rank + 1) / total) * 100); 0 when total is 0.
func Percentile(rank, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(total-rank+1) / float64(total) * 100))
}

type ranked struct {
	id    string
	count int
}

// order sorts by count descending. Equal counts keep their input order, so tied members get
// consecutive ranks rather than a shared one.
func order(list []ranked) {
	sort.SliceStable(list, func(i, j int) bool { return list[i].count > list[j].count })
}

// Compute returns the ranking cache of every entry, keyed by member id. Members without sessions
// get a cache with zero rank so a previous standing is overwritten.
func Compute(entries []Entry, now time.Time) map[string]members.RankingCache {
	out := make(map[string]members.RankingCache, len(entries))

	global := make([]ranked, 0, len(entries))
	for _, e := range entries {
		if e.Total > 0 {
			global = append(global, ranked{id: e.MemberID, count: e.Total})
		}
	}
	order(global)
	for _, e := range entries {
		out[e.MemberID] = members.RankingCache{TotalSessions: e.Total, TotalMembers: len(global), ComputedAt: now.UTC()}
	}
	for i, g := range global {
		cache := out[g.id]
		cache.GlobalRank = i + 1
		cache.GlobalPercentile = Percentile(i+1, len(global))
		out[g.id] = cache
	}

	type group struct{ program, center string }
	groups := make(map[group][]ranked)
	for _, e := range entries {
		for program, centers := range e.Programs {
			for center, n := range centers {
				if n > 0 {
					key := group{program, center}
					groups[key] = append(groups[key], ranked{id: e.MemberID, count: n})
				}
			}
		}
	}
	for key, list := range groups {
		order(list)
		for i, r := range list {
			cache := out[r.id]
			if cache.Programs == nil {
				cache.Programs = make(map[string]map[string]members.ProgramRank)
			}
			if cache.Programs[key.program] == nil {
				cache.Programs[key.program] = make(map[string]members.ProgramRank)
			}
			cache.Programs[key.program][key.center] = members.ProgramRank{
				Sessions:   r.count,
				Rank:       i + 1,
				Percentile: Percentile(i+1, len(list)),
				Total:      len(list),
			}
			out[r.id] = cache
		}
	}
	return out
}
