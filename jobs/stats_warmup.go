package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/gymops/gymops/internal/jobs"
	"github.com/gymops/gymops/internal/stats"
)

// StatsWarmer fills the dashboard cache with statistics reports.
type StatsWarmer interface {
	WarmStats(ctx context.Context) (int, error)
	Stats(ctx context.Context, center string) (stats.Report, error)
}

// StatsWarmupJob precomputes the all-centers report and one report per active center.
type StatsWarmupJob struct {
	Warmer  StatsWarmer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Timeout time.Duration
	clock   func() time.Time
}

// NewStatsWarmupJob wires dependencies for the warmup handler.
func NewStatsWarmupJob(warmer StatsWarmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *StatsWarmupJob {
	return &StatsWarmupJob{
		Warmer:  warmer,
		Logger:  logger,
		Metrics: metrics,
		Timeout: 2 * time.Minute,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes statistics warmup tasks.
func (j *StatsWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Warmer == nil {
		return errors.New("stats warmup: handler not configured")
	}
	var payload StatsWarmupPayload
	if err := decodePayload(t.Payload(), &payload); err != nil {
		return fmt.Errorf("stats warmup: decode payload: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskStatsWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	if payload.Center != "" {
		logger = logger.With(slog.String("center", payload.Center))
	}
	logger.Info("starting stats warmup")
	start := j.now()

	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	warmed, err := j.warm(ctx, payload.Center)
	j.metrics().ReportsWarmed(warmed)
	if err != nil {
		resultErr = err
		logger.Error("stats warmup failed", slog.Int("warmed", warmed), slog.Any("error", err))
		return resultErr
	}
	logger.Info("completed stats warmup", slog.Int("reports", warmed), slog.Duration("duration", j.now().Sub(start)))
	return resultErr
}

func (j *StatsWarmupJob) warm(ctx context.Context, center string) (int, error) {
	if center == "" {
		return j.Warmer.WarmStats(ctx)
	}
	if _, err := j.Warmer.Stats(ctx, center); err != nil {
		return 0, err
	}
	return 1, nil
}

func (j *StatsWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskStatsWarmup))
	}
	return slog.Default().With(slog.String("job", TaskStatsWarmup))
}

func (j *StatsWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *StatsWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
