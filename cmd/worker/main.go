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

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/bensupplier/catalog/internal/app"
	"github.com/bensupplier/catalog/internal/catalog"
	jobmetrics "github.com/bensupplier/catalog/internal/jobs"
	"github.com/bensupplier/catalog/internal/media"
	"github.com/bensupplier/catalog/internal/observability"
	"github.com/bensupplier/catalog/jobs"
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

	repo, closeRepo, err := app.OpenRepository(ctx, cfg, logger)
	if err != nil {
		logger.Error("open storage", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeRepo()

	mediaStore := media.NewStore(media.Config{Root: cfg.MediaRoot, MaxFileSize: cfg.MediaMaxFileSize})
	if err := mediaStore.EnsureRoot(); err != nil {
		logger.Error("prepare media root", slog.Any("error", err))
		os.Exit(1)
	}

	catalogService := catalog.NewService(repo, mediaStore, catalog.ServiceConfig{
		Timeout:        cfg.StorageTimeout,
		MediaURLPrefix: cfg.MediaURLPrefix,
		Logger:         logger,
	})

	metrics := observability.NewMetrics()
	reapJob := jobs.NewMediaReapJob(catalogService, mediaStore, cfg.MediaOrphanGrace, logger)
	reapJob.Recorder = metrics
	reapJob.Metrics = jobmetrics.NewMetrics(metrics.Registerer())

	reapTask, err := jobs.NewMediaReapTask(0)
	if err != nil {
		logger.Error("build media reap task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskMediaReap, Handler: reapJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.MediaReapCron, Task: reapTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsRouter := chi.NewRouter()
	metricsRouter.Method(http.MethodGet, "/metrics", metrics.Handler())
	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metricsRouter, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("starting worker metrics server", slog.String("addr", cfg.WorkerMetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("starting worker", slog.String("reap_cron", cfg.MediaReapCron), slog.Duration("orphan_grace", cfg.MediaOrphanGrace))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
