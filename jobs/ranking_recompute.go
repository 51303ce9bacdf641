package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/gymops/gymops/internal/jobs"
	"github.com/gymops/gymops/internal/members"
	"github.com/gymops/gymops/internal/ranking"
	"github.com/gymops/gymops/internal/store"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// RankingSource computes the ranking caches to persist.
type RankingSource interface {
	Rankings(ctx context.Context) (map[string]members.RankingCache, error)
}

// ChangePublisher announces member writes so readers drop their snapshots.
type ChangePublisher interface {
	Publish(ctx context.Context, change store.Change)
}

// RankingRecomputeJob recomputes every member's ranking cache and writes it in batches.
type RankingRecomputeJob struct {
	Source    RankingSource
	Writer    ranking.Writer
	Publisher ChangePublisher
	BatchSize int
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewRankingRecomputeJob wires dependencies for the ranking handler.
func NewRankingRecomputeJob(source RankingSource, writer ranking.Writer, publisher ChangePublisher, batchSize int, logger *slog.Logger, metrics *jobmetrics.Metrics) *RankingRecomputeJob {
	return &RankingRecomputeJob{
		Source:    source,
		Writer:    writer,
		Publisher: publisher,
		BatchSize: batchSize,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes ranking recompute tasks.
func (j *RankingRecomputeJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Source == nil {
		return errors.New("ranking recompute: handler not configured")
	}
	var payload RankingRecomputePayload
	if err := decodePayload(t.Payload(), &payload); err != nil {
		return fmt.Errorf("ranking recompute: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Trigger == "" {
		payload.Trigger = TriggerCron
	}
	_, err := j.Run(ctx, payload)
	return err
}

// Run computes and persists the rankings. Batches committed before a failure stay committed.
func (j *RankingRecomputeJob) Run(ctx context.Context, payload RankingRecomputePayload) (ranking.Outcome, error) {
	tracker := j.metrics().Track(TaskRankingRecompute)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("trigger", payload.Trigger))
	if payload.RequestedBy != "" {
		logger = logger.With(slog.String("requested_by", payload.RequestedBy))
	}
	start := j.now()
	logger.Info("starting ranking recompute")

	caches, err := j.Source.Rankings(ctx)
	if err != nil {
		resultErr = fmt.Errorf("ranking recompute: compute: %w", err)
		logger.Error("compute rankings", slog.Any("error", err))
		return ranking.Outcome{}, resultErr
	}

	runner := ranking.NewRunner(j.Writer, j.BatchSize, logger)
	committed := 0
	runner.OnProgress(func(done, total int) {
		j.metrics().RankingBatch(true, done-committed)
		committed = done
		logger.Debug("ranking progress", slog.Int("done", done), slog.Int("total", total))
	})
	out, err := runner.Run(ctx, caches)
	if committed > 0 && j.Publisher != nil {
		j.Publisher.Publish(context.WithoutCancel(ctx), store.Change{Source: store.SourceMembers})
	}
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			j.metrics().RankingBatch(false, 0)
		}
		resultErr = err
		logger.Error("ranking recompute incomplete", slog.Int("written", out.Written), slog.Int("total", out.Total), slog.Any("error", err))
		return out, resultErr
	}

	logger.Info("completed ranking recompute",
		slog.String("run_id", out.RunID.String()),
		slog.Int("members", out.Written),
		slog.Int("batches", out.Batches),
		slog.Duration("duration", j.now().Sub(start)))
	return out, resultErr
}

func (j *RankingRecomputeJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskRankingRecompute))
	}
	return slog.Default().With(slog.String("job", TaskRankingRecompute))
}

func (j *RankingRecomputeJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *RankingRecomputeJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
