package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/vendsight/vendsight/internal/app"
	"github.com/vendsight/vendsight/internal/platform/cache"
	"github.com/vendsight/vendsight/internal/platform/db"
	"github.com/vendsight/vendsight/internal/product"
	"github.com/vendsight/vendsight/internal/provider"
	"github.com/vendsight/vendsight/internal/report"
	"github.com/vendsight/vendsight/internal/snapshot"
	"github.com/vendsight/vendsight/jobs"
)

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
	if err := reportCache.ListenForInvalidation(ctx, ""); err != nil {
		logger.Warn("cache invalidation listener", slog.Any("error", err))
	}
	reportService := report.NewService(client, client, reportCache, report.Config{
		Workers:     cfg.FetchWorkers,
		JoinTimeout: cfg.FetchJoinTimeout,
		MaxFanout:   cfg.MaxFanout,
	}, logger)
	if err := reportService.Refresh(ctx); err != nil {
		logger.Error("initial tree refresh", slog.Any("error", err))
		os.Exit(1)
	}

	productCollector := product.NewCollector(client, product.Config{
		Workers:     cfg.FetchWorkers,
		JoinTimeout: cfg.FetchJoinTimeout,
	}, logger)

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	snapshotRepo := snapshot.NewPGRepository(pool)
	snapshotService := snapshot.NewService(snapshotRepo, reportService, logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Config:          cfg,
		MW:              app.MiddlewareConfig{Logger: logger, Config: cfg},
		ReportHandler:   report.NewHandler(logger, reportService),
		ProductHandler:  product.NewHandler(logger, productCollector, reportService),
		SnapshotHandler: snapshot.NewHandler(logger, snapshotService, jobsClient),
		JobHandler:      jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
