package dashboard

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymops/gymops/internal/calendar"
	"github.com/gymops/gymops/internal/members"
	"github.com/gymops/gymops/internal/schedule"
	"github.com/gymops/gymops/internal/shared"
	"github.com/gymops/gymops/internal/stats"
	"github.com/gymops/gymops/internal/store"
)

type fakeRepo struct {
	mu         sync.Mutex
	loads      atomic.Int32
	centers    []calendar.Center
	catalog    schedule.Catalog
	exceptions []calendar.Exceptions
	overrides  schedule.Overrides
	roster     []members.Member
	edits      []schedule.Edit
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		centers: []calendar.Center{{ID: "A", Name: "Centre A", Active: true, Default: calendar.Config{WorkDays: []int{1, 2, 3, 4, 5}, AvailableVacationDays: 5}}},
		catalog: schedule.Catalog{{ID: "S1", StartDate: "2024-01-01", Sessions: map[schedule.Weekday][]schedule.SessionTemplate{
			schedule.Monday: {{Time: "09:05", Program: "BP", Center: "A"}, {Time: "18:00", Program: "BC", Center: "A"}},
		}}},
		exceptions: []calendar.Exceptions{{Year: 2024, Holidays: []calendar.ExceptionDate{{Date: "2024-04-01", Reason: "Easter Monday"}}}},
		overrides:  schedule.Overrides{},
		roster: []members.Member{
			{ID: "m2", Name: "Jordi", Sessions: []members.Record{{Date: "2024-03-04", Time: "09:05", Activity: "BodyCombat", Center: "A"}}},
			{ID: "m1", Name: "Anna", Sessions: []members.Record{
				{Date: "2024-03-04", Time: "09:05-10:00", Activity: "BodyCombat", Center: "A"},
				{Date: "2024-03-11", Time: "18:00", Activity: "Yoga", Center: "A"},
			}},
		},
	}
}

func (r *fakeRepo) Centers(context.Context) ([]calendar.Center, error) {
	r.loads.Add(1)
	return r.centers, nil
}

func (r *fakeRepo) Catalog(context.Context) (schedule.Catalog, error) { return r.catalog, nil }

func (r *fakeRepo) Exceptions(context.Context) ([]calendar.Exceptions, error) {
	return r.exceptions, nil
}

func (r *fakeRepo) Overrides(context.Context) (schedule.Overrides, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(schedule.Overrides, len(r.overrides))
	for k, v := range r.overrides {
		out[k] = append([]schedule.Session(nil), v...)
	}
	return out, nil
}

func (r *fakeRepo) Members(context.Context) ([]members.Member, error) {
	return append([]members.Member(nil), r.roster...), nil
}

func (r *fakeRepo) Changes(_ context.Context, date string) ([]schedule.ChangeRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []schedule.ChangeRecord
	for _, e := range r.edits {
		if e.Date == date {
			out = append(out, e.Change)
		}
	}
	return out, nil
}

func (r *fakeRepo) ApplyEdit(_ context.Context, edit schedule.Edit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if edit.Restore {
		delete(r.overrides, edit.Date)
	} else {
		r.overrides[edit.Date] = edit.List
	}
	r.edits = append(r.edits, edit)
	return nil
}

type recordingObserver struct {
	mu            sync.Mutex
	hits, misses  int
	invalidations []string
}

func (o *recordingObserver) CacheLookup(_ string, hit bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if hit {
		o.hits++
	} else {
		o.misses++
	}
}

func (o *recordingObserver) Invalidated(source string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.invalidations = append(o.invalidations, source)
}

func newTestService(t *testing.T) (*Service, *fakeRepo, *recordingObserver) {
	t.Helper()
	cache, _ := newTestCache(t)
	repo := newFakeRepo()
	observer := &recordingObserver{}
	svc := NewService(repo, cache, Options{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Observer: observer,
	})
	svc.WithNow(func() time.Time { return time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC) })
	return svc, repo, observer
}

func TestSnapshotLoadsOnceForConcurrentCallers(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Snapshot(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), repo.loads.Load())

	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "m1", snap.Roster[0].ID, "roster is ordered by id")
	assert.Equal(t, 2, snap.Roster[0].TotalSessions, "derived counters are recomputed")
	require.Len(t, snap.Reconciled.Discrepancies, 2)
	assert.Equal(t, 2, snap.Reconciled.Discrepancies[0].Count)
}

func TestResolveDayAndRange(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.ResolveDay(ctx, "2024-04-01")
	require.NoError(t, err)
	assert.Equal(t, schedule.SourceException, res.Source)

	_, err = svc.ResolveDay(ctx, "01/04/2024")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	days, err := svc.ResolveRange(ctx, "2024-03-04", "2024-03-10")
	require.NoError(t, err)
	assert.Len(t, days, 7)

	_, err = svc.ResolveRange(ctx, "2024-01-01", "2024-06-30")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
	_, err = svc.ResolveRange(ctx, "2024-03-10", "2024-03-04")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestEditsPersistAndInvalidate(t *testing.T) {
	svc, repo, observer := newTestService(t)
	ctx := context.Background()

	edit, err := svc.DeleteSession(ctx, "2024-03-18", 0, "Instructor ill")
	require.NoError(t, err)
	require.Len(t, edit.List, 2, "the whole generated day is materialised")
	assert.True(t, edit.List[0].IsDeleted())

	res, err := svc.ResolveDay(ctx, "2024-03-18")
	require.NoError(t, err)
	assert.Equal(t, schedule.SourceOverride, res.Source)
	assert.Len(t, schedule.Active(res.Sessions), 1)
	assert.Equal(t, int32(2), repo.loads.Load(), "edit drops the snapshot")
	assert.Contains(t, observer.invalidations, "overrides")

	_, err = svc.AddSession(ctx, "2024-03-18", schedule.SessionInput{Time: "12:00", Program: "zumba", Center: "A", Reason: "Cover"})
	require.NoError(t, err)
	_, err = svc.ModifySession(ctx, "2024-03-18", 0, schedule.SessionInput{Time: "09:30", Program: "BP", Reason: "x"})
	assert.ErrorIs(t, err, shared.ErrInvalidInput, "deleted sessions cannot be modified")

	changes, err := svc.Changes(ctx, "2024-03-18")
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, schedule.ActionDeleted, changes[0].Action)
	assert.Equal(t, schedule.ActionAdded, changes[1].Action)

	_, err = svc.RestoreDay(ctx, "2024-03-18", "Back to normal")
	require.NoError(t, err)
	res, err = svc.ResolveDay(ctx, "2024-03-18")
	require.NoError(t, err)
	assert.Equal(t, schedule.SourceSchedule, res.Source)

	_, err = svc.RestoreDay(ctx, "2024-03-18", "again")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestStatsAreCachedUntilInvalidated(t *testing.T) {
	svc, _, observer := newTestService(t)
	ctx := context.Background()

	first, err := svc.Stats(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, first.TotalAttendances)
	second, err := svc.Stats(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, first.TotalAttendances, second.TotalAttendances)
	assert.Equal(t, 1, observer.hits)
	assert.Equal(t, 1, observer.misses)

	require.NoError(t, svc.Invalidate(ctx, store.SourceMembers))
	_, err = svc.Stats(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, observer.misses)

	_, err = svc.Stats(ctx, "Z")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	warmed, err := svc.WarmStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, warmed)
}

type fakeSubscriber struct {
	fn func(store.Change)
}

func (f *fakeSubscriber) Subscribe(_ context.Context, fn func(store.Change)) error {
	f.fn = fn
	return nil
}

func TestWatchInvalidatesOnChange(t *testing.T) {
	svc, repo, observer := newTestService(t)
	ctx := context.Background()
	sub := &fakeSubscriber{}
	require.NoError(t, svc.Watch(ctx, sub))

	_, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	sub.fn(store.Change{Source: store.SourceSchedules})
	_, err = svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), repo.loads.Load())
	assert.Equal(t, []string{"schedules"}, observer.invalidations)
}

func TestMemberCenterAndRankings(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	profile, err := svc.MemberSummary(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "BC", profile.FavoriteProgram, "ties go to the smaller code")
	assert.Equal(t, 1, profile.DaysSinceLastSession)
	_, err = svc.MemberSummary(ctx, "nobody")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	summary, err := svc.CenterSummary(ctx, "A", 2024)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ExceptionDays)
	_, err = svc.CenterSummary(ctx, "Z", 2024)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	discrepancies, err := svc.Discrepancies(ctx, "A")
	require.NoError(t, err)
	assert.Len(t, discrepancies, 2)

	caches, err := svc.Rankings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, caches["m1"].GlobalRank)
	assert.Equal(t, 2, caches["m2"].GlobalRank)
	assert.Equal(t, 50, caches["m2"].GlobalPercentile)
}

func TestStatsReportShape(t *testing.T) {
	svc, _, _ := newTestService(t)
	report, err := svc.Stats(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, "A", report.Center)
	assert.Equal(t, stats.SlotMorning, report.PreferredTimeSlot)
	assert.Equal(t, 50.0, report.RetentionRate)
}
