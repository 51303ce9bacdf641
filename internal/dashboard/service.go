package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gymops/gymops/internal/attendance"
	"github.com/gymops/gymops/internal/calendar"
	"github.com/gymops/gymops/internal/members"
	"github.com/gymops/gymops/internal/ranking"
	"github.com/gymops/gymops/internal/schedule"
	"github.com/gymops/gymops/internal/shared"
	"github.com/gymops/gymops/internal/stats"
	"github.com/gymops/gymops/internal/store"
)

// MaxRangeDays bounds calendar range queries.
const MaxRangeDays = 93

// Observer receives cache and invalidation events; *observability.Metrics satisfies it.
type Observer interface {
	CacheLookup(kind string, hit bool)
	Invalidated(source string)
}

// Subscriber delivers upstream change notifications; *store.Notifier satisfies it.
type Subscriber interface {
	Subscribe(ctx context.Context, fn func(store.Change)) error
}

// Options tune a Service.
type Options struct {
	TopN     int
	Location *time.Location
	Logger   *slog.Logger
	Observer Observer
}

// Service memoises the derived chain over the latest snapshot. Any upstream change drops the
// snapshot and bumps the cache version; there is no partial invalidation.
type Service struct {
	repo     Repository
	cache    *Cache
	editor   *schedule.Editor
	logger   *slog.Logger
	observer Observer
	topN     int
	loc      *time.Location
	now      func() time.Time

	group singleflight.Group

	mu         sync.RWMutex
	snapshot   *Snapshot
	generation uint64
}

// NewService wires the repository and cache.
func NewService(repo Repository, cache *Cache, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	topN := opts.TopN
	if topN <= 0 {
		topN = stats.DefaultTopN
	}
	return &Service{
		repo:     repo,
		cache:    cache,
		editor:   schedule.NewEditor(),
		logger:   logger,
		observer: opts.Observer,
		topN:     topN,
		loc:      loc,
		now:      time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now == nil {
		return
	}
	s.now = now
	s.editor.WithNow(now)
}

func (s *Service) clock() time.Time {
	return s.now().In(s.loc)
}

// Snapshot returns the memoised snapshot, loading it once for concurrent callers.
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	s.mu.RLock()
	snap, gen := s.snapshot, s.generation
	s.mu.RUnlock()
	if snap != nil {
		return snap, nil
	}
	v, err := s.do(ctx, fmt.Sprintf("snapshot:%d", gen), func(ctx context.Context) (any, error) {
		s.mu.RLock()
		current := s.snapshot
		s.mu.RUnlock()
		if current != nil {
			return current, nil
		}
		loaded, err := loadSnapshot(ctx, s.repo, s.clock())
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		if s.generation == gen {
			s.snapshot = loaded
		}
		s.mu.Unlock()
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

// do collapses concurrent calls for key. The shared work is detached from the first caller's
// cancellation; each caller still stops waiting when its own context ends.
func (s *Service) do(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	work := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		return fn(work)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

// Invalidate drops the memoised snapshot and every cached derived payload.
func (s *Service) Invalidate(ctx context.Context, source store.Source) error {
	s.mu.Lock()
	s.snapshot = nil
	s.generation++
	s.mu.Unlock()
	if s.observer != nil {
		s.observer.Invalidated(string(source))
	}
	if _, err := s.cache.Bump(ctx); err != nil {
		return fmt.Errorf("dashboard: bump cache: %w", err)
	}
	return nil
}

// Watch subscribes to upstream changes and invalidates on every notification.
func (s *Service) Watch(ctx context.Context, sub Subscriber) error {
	if sub == nil {
		return nil
	}
	return sub.Subscribe(ctx, func(change store.Change) {
		if err := s.Invalidate(ctx, change.Source); err != nil {
			s.logger.Warn("invalidate dashboard", slog.String("source", string(change.Source)), slog.Any("error", err))
			return
		}
		s.logger.Debug("dashboard invalidated", slog.String("source", string(change.Source)), slog.String("date", change.Date))
	})
}

// ResolveDay explains the sessions of one date.
func (s *Service) ResolveDay(ctx context.Context, date string) (schedule.Resolution, error) {
	if _, err := shared.ParseDate(date); err != nil {
		return schedule.Resolution{}, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return schedule.Resolution{}, err
	}
	return snap.Resolver.Explain(date), nil
}

// ResolveRange explains every date in [from, to], at most MaxRangeDays days.
func (s *Service) ResolveRange(ctx context.Context, from, to string) ([]schedule.Resolution, error) {
	start, err := shared.ParseDate(from)
	if err != nil {
		return nil, fmt.Errorf("%w: from: %v", shared.ErrInvalidInput, err)
	}
	end, err := shared.ParseDate(to)
	if err != nil {
		return nil, fmt.Errorf("%w: to: %v", shared.ErrInvalidInput, err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: range ends before it starts", shared.ErrInvalidInput)
	}
	if days := int(end.Sub(start).Hours()/24) + 1; days > MaxRangeDays {
		return nil, fmt.Errorf("%w: range of %d days exceeds %d", shared.ErrInvalidInput, days, MaxRangeDays)
	}
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Resolver.ResolveRange(start, end), nil
}

// Changes returns the audit log of a date.
func (s *Service) Changes(ctx context.Context, date string) ([]schedule.ChangeRecord, error) {
	if _, err := shared.ParseDate(date); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	return s.repo.Changes(ctx, date)
}

// AddSession adds a custom session to date.
func (s *Service) AddSession(ctx context.Context, date string, in schedule.SessionInput) (schedule.Edit, error) {
	return s.edit(ctx, date, func(current []schedule.Session) (schedule.Edit, error) {
		return s.editor.Add(date, current, in)
	})
}

// ModifySession replaces the session at index.
func (s *Service) ModifySession(ctx context.Context, date string, index int, in schedule.SessionInput) (schedule.Edit, error) {
	return s.edit(ctx, date, func(current []schedule.Session) (schedule.Edit, error) {
		return s.editor.Modify(date, current, index, in)
	})
}

// DeleteSession soft-deletes the session at index.
func (s *Service) DeleteSession(ctx context.Context, date string, index int, reason string) (schedule.Edit, error) {
	return s.edit(ctx, date, func(current []schedule.Session) (schedule.Edit, error) {
		return s.editor.Delete(date, current, index, reason)
	})
}

// RestoreDay drops the override of date so the generated sessions apply again.
func (s *Service) RestoreDay(ctx context.Context, date, reason string) (schedule.Edit, error) {
	return s.edit(ctx, date, func([]schedule.Session) (schedule.Edit, error) {
		snap, err := s.Snapshot(ctx)
		if err != nil {
			return schedule.Edit{}, err
		}
		if _, ok := snap.Overrides[date]; !ok {
			return schedule.Edit{}, fmt.Errorf("override for %s: %w", date, shared.ErrNotFound)
		}
		return s.editor.Restore(date, reason)
	})
}

func (s *Service) edit(ctx context.Context, date string, build func([]schedule.Session) (schedule.Edit, error)) (schedule.Edit, error) {
	if _, err := shared.ParseDate(date); err != nil {
		return schedule.Edit{}, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return schedule.Edit{}, err
	}
	edit, err := build(snap.Resolver.Resolve(date))
	if err != nil {
		return schedule.Edit{}, editError(err)
	}
	if err := s.repo.ApplyEdit(ctx, edit); err != nil {
		return schedule.Edit{}, err
	}
	if err := s.Invalidate(ctx, store.SourceOverrides); err != nil {
		s.logger.Warn("invalidate after edit", slog.String("date", date), slog.Any("error", err))
	}
	s.logger.Info("session edit applied",
		slog.String("date", date),
		slog.String("action", string(edit.Change.Action)),
		slog.Int("index", edit.Change.SessionIndex))
	return edit, nil
}

func editError(err error) error {
	switch {
	case errors.Is(err, schedule.ErrInvalidEdit), errors.Is(err, schedule.ErrSessionIndex), errors.Is(err, schedule.ErrSessionDeleted):
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	default:
		return err
	}
}

// Stats returns the statistics report for center, empty for all centers, through the cache.
func (s *Service) Stats(ctx context.Context, center string) (stats.Report, error) {
	scope := center
	if scope == "" {
		scope = "all"
	}
	key, err := s.cache.BuildKey(ctx, "stats", scope)
	if err != nil {
		return stats.Report{}, err
	}
	v, err := s.do(ctx, key, func(ctx context.Context) (any, error) {
		var report stats.Report
		hit, err := s.cache.FetchJSON(ctx, key, &report, func(ctx context.Context) (any, error) {
			return s.computeStats(ctx, center)
		})
		if s.observer != nil && err == nil {
			s.observer.CacheLookup("stats", hit)
		}
		return report, err
	})
	if err != nil {
		return stats.Report{}, err
	}
	return v.(stats.Report), nil
}

func (s *Service) computeStats(ctx context.Context, center string) (stats.Report, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return stats.Report{}, err
	}
	if center != "" {
		if _, ok := snap.Center(center); !ok {
			return stats.Report{}, fmt.Errorf("center %s: %w", center, shared.ErrNotFound)
		}
	}
	return stats.Aggregate(stats.Input{
		Roster:     snap.Roster,
		Reconciled: snap.Reconciled,
		Catalog:    snap.Catalog,
		Resolver:   snap.Resolver,
		Center:     center,
		Now:        s.clock(),
		TopN:       s.topN,
	}), nil
}

// WarmStats precomputes the all-centers report and the report of every active center.
func (s *Service) WarmStats(ctx context.Context) (int, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	scopes := []string{""}
	for _, c := range snap.Centers {
		if c.Active {
			scopes = append(scopes, c.ID)
		}
	}
	warmed := 0
	for _, scope := range scopes {
		if err := ctx.Err(); err != nil {
			return warmed, err
		}
		if _, err := s.Stats(ctx, scope); err != nil {
			return warmed, fmt.Errorf("dashboard: warm stats %q: %w", scope, err)
		}
		warmed++
	}
	return warmed, nil
}

// Discrepancies returns the sorted discrepancies, optionally for one center.
func (s *Service) Discrepancies(ctx context.Context, center string) ([]attendance.Discrepancy, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Reconciled.DiscrepanciesAt(center), nil
}

// MemberSummary returns the profile of one member.
func (s *Service) MemberSummary(ctx context.Context, id string) (stats.Profile, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return stats.Profile{}, err
	}
	mr, ok := snap.Reconciled.Member(id)
	if !ok {
		return stats.Profile{}, fmt.Errorf("member %s: %w", id, shared.ErrNotFound)
	}
	return stats.MemberSummary(mr, s.clock()), nil
}

// CenterSummary returns the calendar summary of a center for a fiscal year.
func (s *Service) CenterSummary(ctx context.Context, id string, year int) (calendar.Summary, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return calendar.Summary{}, err
	}
	center, ok := snap.Center(id)
	if !ok {
		return calendar.Summary{}, fmt.Errorf("center %s: %w", id, shared.ErrNotFound)
	}
	return calendar.Summarize(center, snap.Calendar, year), nil
}

// Rankings computes the ranking cache of every member from a fresh snapshot.
func (s *Service) Rankings(ctx context.Context) (map[string]members.RankingCache, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return ranking.Compute(ranking.EntriesFrom(snap.Reconciled), s.clock()), nil
}
