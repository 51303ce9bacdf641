// Package dashboard loads the input snapshots, memoises the derived computation chain and
// serves it to the HTTP layer and background jobs.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gymops/gymops/internal/attendance"
	"github.com/gymops/gymops/internal/calendar"
	"github.com/gymops/gymops/internal/members"
	"github.com/gymops/gymops/internal/schedule"
)

// Repository is the document store the dashboard reads from and writes edits to.
type Repository interface {
	Centers(ctx context.Context) ([]calendar.Center, error)
	Catalog(ctx context.Context) (schedule.Catalog, error)
	Exceptions(ctx context.Context) ([]calendar.Exceptions, error)
	Overrides(ctx context.Context) (schedule.Overrides, error)
	Members(ctx context.Context) ([]members.Member, error)
	Changes(ctx context.Context, date string) ([]schedule.ChangeRecord, error)
	ApplyEdit(ctx context.Context, edit schedule.Edit) error
}

// Snapshot is one consistent view of every input plus the derived resolver and reconciliation.
// It is immutable once built.
type Snapshot struct {
	Centers    []calendar.Center
	Catalog    schedule.Catalog
	Calendar   *calendar.Calendar
	Overrides  schedule.Overrides
	Roster     []members.Member
	Resolver   *schedule.Resolver
	Reconciled attendance.Reconciliation
	LoadedAt   time.Time
}

// Center looks up a center by id.
func (s *Snapshot) Center(id string) (calendar.Center, bool) {
	for _, c := range s.Centers {
		if c.ID == id {
			return c, true
		}
	}
	return calendar.Center{}, false
}

// loadSnapshot fetches the five sources concurrently and derives the chain.
func loadSnapshot(ctx context.Context, repo Repository, now time.Time) (*Snapshot, error) {
	var (
		centers    []calendar.Center
		catalog    schedule.Catalog
		exceptions []calendar.Exceptions
		overrides  schedule.Overrides
		roster     []members.Member
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		centers, err = repo.Centers(gctx)
		return err
	})
	g.Go(func() (err error) {
		catalog, err = repo.Catalog(gctx)
		return err
	})
	g.Go(func() (err error) {
		exceptions, err = repo.Exceptions(gctx)
		return err
	})
	g.Go(func() (err error) {
		overrides, err = repo.Overrides(gctx)
		return err
	})
	g.Go(func() (err error) {
		roster, err = repo.Members(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("dashboard: load snapshot: %w", err)
	}

	for i := range roster {
		roster[i].Recompute(now)
	}
	members.SortByID(roster)
	cal := calendar.NewCalendar(exceptions...)
	resolver := schedule.NewResolver(catalog, cal, overrides)
	return &Snapshot{
		Centers:    centers,
		Catalog:    catalog,
		Calendar:   cal,
		Overrides:  overrides,
		Roster:     roster,
		Resolver:   resolver,
		Reconciled: attendance.NewReconciler(resolver.Resolve).ReconcileMembers(roster),
		LoadedAt:   now,
	}, nil
}
