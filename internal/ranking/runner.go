package ranking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/gymops/gymops/internal/members"
)

// DefaultBatchSize bounds the number of member writes committed together.
const DefaultBatchSize = 500

// ErrNoWriter is returned when a Runner has no persistence configured.
var ErrNoWriter = errors.New("ranking: writer not configured")

// Update is one ranking cache overwrite.
type Update struct {
	MemberID string
	Cache    members.RankingCache
}

// Writer persists one batch atomically. Batches are independent of each other.
type Writer interface {
	WriteRankingBatch(ctx context.Context, batch []Update) error
}

// ProgressFunc observes committed progress after every batch.
type ProgressFunc func(done, total int)

// Outcome reports how far a run got.
type Outcome struct {
	RunID   uuid.UUID `json:"runId"`
	Total   int       `json:"total"`
	Written int       `json:"written"`
	Batches int       `json:"batches"`
	Failed  bool      `json:"failed"`
}

// Runner writes ranking caches in sequential fixed-size batches. A failing batch aborts the run;
// batches already committed stay committed and the next successful run overwrites everything.
type Runner struct {
	writer    Writer
	batchSize int
	logger    *slog.Logger
	progress  ProgressFunc
	newID     func() uuid.UUID
}

// NewRunner builds a Runner. A non-positive batch size falls back to DefaultBatchSize.
func NewRunner(writer Writer, batchSize int, logger *slog.Logger) *Runner {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{writer: writer, batchSize: batchSize, logger: logger, newID: uuid.New}
}

// OnProgress registers a progress callback.
func (r *Runner) OnProgress(fn ProgressFunc) {
	r.progress = fn
}

// Run persists caches ordered by member id. The context is checked between batches only.
func (r *Runner) Run(ctx context.Context, caches map[string]members.RankingCache) (Outcome, error) {
	out := Outcome{RunID: r.newID(), Total: len(caches)}
	if r.writer == nil {
		out.Failed = true
		return out, ErrNoWriter
	}
	ids := make([]string, 0, len(caches))
	for id := range caches {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	logger := r.logger.With(slog.String("run_id", out.RunID.String()))
	start := time.Now()
	for lo := 0; lo < len(ids); lo += r.batchSize {
		if err := ctx.Err(); err != nil {
			out.Failed = true
			logger.Warn("ranking run cancelled", slog.Int("written", out.Written), slog.Int("total", out.Total))
			return out, err
		}
		hi := lo + r.batchSize
		if hi > len(ids) {
			hi = len(ids)
		}
		batch := make([]Update, 0, hi-lo)
		for _, id := range ids[lo:hi] {
			batch = append(batch, Update{MemberID: id, Cache: caches[id]})
		}
		if err := r.writer.WriteRankingBatch(ctx, batch); err != nil {
			out.Failed = true
			logger.Error("ranking batch failed",
				slog.Int("batch", out.Batches+1),
				slog.Int("written", out.Written),
				slog.Int("total", out.Total),
				slog.Any("error", err))
			return out, fmt.Errorf("ranking: batch %d: %w", out.Batches+1, err)
		}
		out.Batches++
		out.Written += len(batch)
		if r.progress != nil {
			r.progress(out.Written, out.Total)
		}
	}
	logger.Info("ranking run completed", slog.Int("members", out.Written), slog.Int("batches", out.Batches), slog.Duration("duration", time.Since(start)))
	return out, nil
}
