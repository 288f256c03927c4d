package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/bensupplier/catalog/cmd/catalog/cli"
	"github.com/bensupplier/catalog/internal/app"
	"github.com/bensupplier/catalog/internal/auth"
	"github.com/bensupplier/catalog/internal/catalog"
	"github.com/bensupplier/catalog/internal/media"
	"github.com/bensupplier/catalog/internal/observability"
	"github.com/bensupplier/catalog/internal/platform/cache"
	"github.com/bensupplier/catalog/internal/shared"
	"github.com/bensupplier/catalog/internal/view"
	"github.com/bensupplier/catalog/jobs"
)

const sessionCookie = "catalog_session"

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		slog.Default().Error("catalog", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 || args[0] == "serve" {
		return serve(ctx)
	}
	switch args[0] {
	case "hash-password":
		return hashPassword(args[1:], stdin, stdout)
	case "jobs":
		return jobsCommand(ctx, args[1:], stdout)
	default:
		return fmt.Errorf("unknown command %q (want serve, hash-password or jobs)", args[0])
	}
}

func hashPassword(args []string, stdin io.Reader, stdout io.Writer) error {
	var password string
	if len(args) > 0 {
		password = args[0]
	} else {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		password = line
	}
	hash, err := cli.HashPassword(password, 0)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, hash)
	return err
}

func jobsCommand(ctx context.Context, args []string, stdout io.Writer) error {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "127.0.0.1:6379"
	}
	jobsCLI := cli.NewJobsCLI(redisAddr)
	defer func() { _ = jobsCLI.Close() }()

	if len(args) == 0 {
		return errors.New("usage: jobs trigger <task> | jobs stats")
	}
	switch args[0] {
	case "trigger":
		name := jobs.TaskMediaReap
		if len(args) > 1 {
			name = args[1]
		}
		info, err := jobsCLI.Trigger(ctx, name)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(stdout, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return err
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(stdout, "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
		return err
	default:
		return fmt.Errorf("unknown jobs command %q", args[0])
	}
}

func serve(ctx context.Context) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := app.NewLogger(cfg)

	repo, closeRepo, err := app.OpenRepository(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer closeRepo()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	mediaStore := media.NewStore(media.Config{Root: cfg.MediaRoot, MaxFileSize: cfg.MediaMaxFileSize})
	if err := mediaStore.EnsureRoot(); err != nil {
		return fmt.Errorf("prepare media root: %w", err)
	}

	metrics := observability.NewMetrics()

	sessionManager := shared.NewSessionManager(redisClient, sessionCookie, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	idempotencyStore := shared.NewIdempotencyStore(redisClient, cfg.IdempotencyTTL)

	templates, err := view.NewEngine()
	if err != nil {
		return fmt.Errorf("parse templates: %w", err)
	}

	authService := auth.NewService(auth.NewStaticRepository(cfg.AdminUsername, cfg.AdminPasswordHash), cfg.AdminAPIToken)
	authHandler := auth.NewHandler(logger, authService, templates, sessionManager, csrfManager)

	catalogService := catalog.NewService(repo, mediaStore, catalog.ServiceConfig{
		Timeout:        cfg.StorageTimeout,
		MediaURLPrefix: cfg.MediaURLPrefix,
		Logger:         logger,
		Recorder:       metrics,
	})
	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{
		Logger:       logger,
		Service:      catalogService,
		Idempotency:  idempotencyStore,
		RequireAdmin: authService.RequireOperator,
	})

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, authService.RequireOperator, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Templates:      templates,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		AuthHandler:    authHandler,
		CatalogHandler: catalogHandler,
		JobHandler:     jobHandler,
		Metrics:        metrics,
		MediaRoot:      mediaStore.Root(),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("storage", cfg.StorageDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	return nil
}
