package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/gymops/gymops/internal/app"
	"github.com/gymops/gymops/internal/dashboard"
	jobmetrics "github.com/gymops/gymops/internal/jobs"
	"github.com/gymops/gymops/internal/observability"
	"github.com/gymops/gymops/internal/platform/cache"
	"github.com/gymops/gymops/internal/platform/db"
	"github.com/gymops/gymops/internal/store"
	"github.com/gymops/gymops/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	notifier := store.NewNotifier(redisClient, logger)
	repo := store.NewRepository(pool, notifier)
	service := dashboard.NewService(repo, dashboard.NewCache(redisClient, cfg.StatsCacheTTL), dashboard.Options{
		TopN:     cfg.TopUsersLimit,
		Location: cfg.Location(),
		Logger:   logger,
	})
	if err := service.Watch(ctx, notifier); err != nil {
		logger.Error("subscribe change feed", slog.Any("error", err))
		os.Exit(1)
	}

	registry := observability.NewMetrics()
	metrics := jobmetrics.NewMetrics(registry.Registerer())
	if cfg.WorkerMetricsAddr != "" {
		metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: registry.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("worker metrics server", slog.Any("error", err))
			}
		}()
		defer metricsServer.Close()
	}
	rankingJob := jobs.NewRankingRecomputeJob(service, repo, notifier, cfg.RankingBatchSize, logger, metrics)
	warmupJob := jobs.NewStatsWarmupJob(service, logger, metrics)

	rankingTask, err := jobs.NewRankingRecomputeTask(jobs.RankingRecomputePayload{Trigger: jobs.TriggerCron})
	if err != nil {
		logger.Error("build ranking task", slog.Any("error", err))
		os.Exit(1)
	}
	warmupTask, err := jobs.NewStatsWarmupTask(jobs.StatsWarmupPayload{})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Location:  cfg.Location(),
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRankingRecompute, Handler: rankingJob.Handle},
			{Type: jobs.TaskStatsWarmup, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.RankingCron, Task: rankingTask},
			{Spec: cfg.StatsWarmupCron, Task: warmupTask},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
