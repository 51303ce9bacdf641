package ranking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymops/gymops/internal/attendance"
	"github.com/gymops/gymops/internal/members"
)

func TestComputeGlobalRanking(t *testing.T) {
	entries := []Entry{
		{MemberID: "a", Total: 10},
		{MemberID: "b", Total: 8},
		{MemberID: "c", Total: 8},
		{MemberID: "d", Total: 3},
		{MemberID: "e", Total: 1},
		{MemberID: "f", Total: 0},
	}
	now := time.Date(2024, 7, 15, 3, 0, 0, 0, time.UTC)
	caches := Compute(entries, now)

	wantRank := map[string]int{"a": 1, "b": 2, "c": 3, "d": 4, "e": 5}
	wantPct := map[string]int{"a": 100, "b": 80, "c": 60, "d": 40, "e": 20}
	for id, rank := range wantRank {
		assert.Equal(t, rank, caches[id].GlobalRank, id)
		assert.Equal(t, wantPct[id], caches[id].GlobalPercentile, id)
		assert.Equal(t, 5, caches[id].TotalMembers, id)
	}
	require.Contains(t, caches, "f")
	assert.Zero(t, caches["f"].GlobalRank)
	assert.Equal(t, now, caches["a"].ComputedAt)
}

func TestPercentile(t *testing.T) {
	assert.Equal(t, 100, Percentile(1, 3))
	assert.Equal(t, 67, Percentile(2, 3))
	assert.Equal(t, 33, Percentile(3, 3))
	assert.Zero(t, Percentile(1, 0))
}

func TestComputePerProgram(t *testing.T) {
	rec := attendance.Reconciliation{Members: []attendance.MemberResult{
		{Member: members.Member{ID: "m2", Sessions: make([]members.Record, 3)}, Results: []attendance.Result{
			{CanonicalProgram: "BP", Center: "A"}, {CanonicalProgram: "BP", Center: "A"}, {CanonicalProgram: "ZU"},
		}},
		{Member: members.Member{ID: "m1", Sessions: make([]members.Record, 3)}, Results: []attendance.Result{
			{CanonicalProgram: "BP", Center: "A"}, {CanonicalProgram: "BP", Center: "A"}, {CanonicalProgram: "BP", Center: "B"},
		}},
		{Member: members.Member{ID: "m3", Sessions: make([]members.Record, 1)}, Results: []attendance.Result{
			{CanonicalProgram: "BP", Center: "A"},
		}},
	}}
	entries := EntriesFrom(rec)
	require.Equal(t, "m1", entries[0].MemberID)

	caches := Compute(entries, time.Now())
	m1 := caches["m1"].Programs
	assert.Equal(t, members.ProgramRank{Sessions: 2, Rank: 1, Percentile: 100, Total: 3}, m1["BP"]["A"])
	assert.Equal(t, members.ProgramRank{Sessions: 1, Rank: 1, Percentile: 100, Total: 1}, m1["BP"]["B"])
	assert.Equal(t, 2, caches["m2"].Programs["BP"]["A"].Rank, "tie keeps member id order")
	assert.Equal(t, 33, caches["m3"].Programs["BP"]["A"].Percentile)
	assert.Equal(t, 1, caches["m2"].Programs["ZU"][NoCenter].Total)
	assert.NotContains(t, caches["m1"].Programs, "ZU")
}

type recordingWriter struct {
	batches [][]Update
	failAt  int
}

func (w *recordingWriter) WriteRankingBatch(_ context.Context, batch []Update) error {
	if w.failAt > 0 && len(w.batches)+1 == w.failAt {
		return errors.New("connection reset")
	}
	w.batches = append(w.batches, batch)
	return nil
}

func cachesFor(n int) map[string]members.RankingCache {
	out := make(map[string]members.RankingCache, n)
	for i := 0; i < n; i++ {
		out[fmt.Sprintf("m%04d", i)] = members.RankingCache{TotalSessions: i}
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunnerBatches(t *testing.T) {
	writer := &recordingWriter{}
	runner := NewRunner(writer, 0, quietLogger())
	var progress [][2]int
	runner.OnProgress(func(done, total int) { progress = append(progress, [2]int{done, total}) })

	out, err := runner.Run(context.Background(), cachesFor(1234))
	require.NoError(t, err)
	assert.Equal(t, 1234, out.Written)
	assert.Equal(t, 3, out.Batches)
	assert.False(t, out.Failed)
	require.Len(t, writer.batches, 3)
	assert.Len(t, writer.batches[0], 500)
	assert.Len(t, writer.batches[2], 234)
	assert.Equal(t, "m0000", writer.batches[0][0].MemberID)
	assert.Equal(t, [][2]int{{500, 1234}, {1000, 1234}, {1234, 1234}}, progress)
}

func TestRunnerAbortsOnBatchFailure(t *testing.T) {
	writer := &recordingWriter{failAt: 2}
	runner := NewRunner(writer, 10, quietLogger())

	out, err := runner.Run(context.Background(), cachesFor(35))
	require.Error(t, err)
	assert.True(t, out.Failed)
	assert.Equal(t, 10, out.Written)
	assert.Equal(t, 1, out.Batches)
	assert.Len(t, writer.batches, 1, "committed batches are not rolled back")
}

func TestRunnerHonoursCancellationBetweenBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	writer := &recordingWriter{}
	runner := NewRunner(writer, 5, quietLogger())
	runner.OnProgress(func(done, total int) {
		if done >= 10 {
			cancel()
		}
	})
	out, err := runner.Run(ctx, cachesFor(20))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 10, out.Written)
}

func TestRunnerWithoutWriter(t *testing.T) {
	_, err := NewRunner(nil, 10, nil).Run(context.Background(), cachesFor(1))
	assert.ErrorIs(t, err, ErrNoWriter)
}
