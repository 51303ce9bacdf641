package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/gymops/gymops/cmd/gymops/cli"
	"github.com/gymops/gymops/internal/app"
	"github.com/gymops/gymops/internal/dashboard"
	dashboardhttp "github.com/gymops/gymops/internal/dashboard/http"
	"github.com/gymops/gymops/internal/observability"
	"github.com/gymops/gymops/internal/platform/cache"
	"github.com/gymops/gymops/internal/platform/db"
	"github.com/gymops/gymops/internal/store"
	"github.com/gymops/gymops/jobs"
)

const usage = `usage: gymops [serve | migrate | jobs trigger <task> [arg] | jobs inspect]`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	args := os.Args[1:]
	if len(args) == 0 {
		args = []string{"serve"}
	}
	switch args[0] {
	case "serve":
		err = serve(ctx, stop, cfg, logger)
	case "migrate":
		err = migrate(ctx, cfg, logger)
	case "jobs":
		err = runJobs(ctx, cfg, args[1:])
	default:
		err = errors.New(usage)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("gymops", slog.String("command", args[0]), slog.Any("error", err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	notifier := store.NewNotifier(redisClient, logger)
	repo := store.NewRepository(pool, notifier)
	service := dashboard.NewService(repo, dashboard.NewCache(redisClient, cfg.StatsCacheTTL), dashboard.Options{
		TopN:     cfg.TopUsersLimit,
		Location: cfg.Location(),
		Logger:   logger,
		Observer: metrics,
	})
	if err := service.Watch(ctx, notifier); err != nil {
		return fmt.Errorf("subscribe change feed: %w", err)
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	queue, err := jobs.NewClient(redisOpts)
	if err != nil {
		return err
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		DashboardHandler: dashboardhttp.NewHandler(logger, service, queue),
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func migrate(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := store.NewRepository(pool, nil).EnsureSchema(ctx); err != nil {
		return err
	}
	logger.Info("schema ensured")
	return nil
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer jobsCLI.Close()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			return errors.New(usage)
		}
		arg := ""
		if len(args) > 2 {
			arg = args[2]
		}
		info, err := jobsCLI.Trigger(ctx, args[1], arg)
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case "inspect":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d failed=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Failed)
		scheduled, err := jobsCLI.ListScheduled(ctx, 10)
		if err != nil {
			return err
		}
		for _, task := range scheduled {
			fmt.Printf("scheduled %s id=%s next=%s\n", task.Type, task.ID, task.NextProcessAt.Format(time.RFC3339))
		}
	default:
		return errors.New(usage)
	}
	return nil
}
