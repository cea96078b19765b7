package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/vendsight/vendsight/internal/app"
	"github.com/vendsight/vendsight/internal/platform/cache"
	"github.com/vendsight/vendsight/internal/platform/db"
	"github.com/vendsight/vendsight/internal/provider"
	"github.com/vendsight/vendsight/internal/report"
	"github.com/vendsight/vendsight/internal/snapshot"
	"github.com/vendsight/vendsight/jobs"
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
		logger.Error("connect postgres", slog.Any("error", err))
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

	gateway := provider.NewHTTPClient(cfg.ProviderBaseURL, cfg.ProviderAPIKey, cfg.ProviderTimeout)
	client := provider.NewRetrying(gateway, logger)

	reportCache := report.NewCache(redisClient, cfg.ReportCacheTTL)
	reportService := report.NewService(client, client, reportCache, report.Config{
		Workers:     cfg.FetchWorkers,
		JoinTimeout: cfg.FetchJoinTimeout,
		MaxFanout:   cfg.MaxFanout,
	}, logger)
	if err := reportService.Refresh(ctx); err != nil {
		logger.Error("initial tree refresh", slog.Any("error", err))
		os.Exit(1)
	}

	snapshotRepo := snapshot.NewPGRepository(pool)
	snapshotService := snapshot.NewService(snapshotRepo, reportService, logger)

	snapshotJob := snapshot.NewJob(snapshotService, logger)
	refreshJob := report.NewRefreshJob(reportService, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSnapshotProcess, Handler: snapshotJob.Handle},
			{Type: jobs.TaskTreeRefresh, Handler: refreshJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.TreeRefreshCron, Task: jobs.NewTreeRefreshTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker shut down")
}
