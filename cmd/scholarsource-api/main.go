// scholarsource-api is the HTTP API server that accepts discovery jobs,
// runs them in the background and serves their status and results.
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

	"golang.org/x/sync/errgroup"

	"scholarsource/internal/api"
	"scholarsource/internal/config"
	"scholarsource/internal/dispatcher"
	"scholarsource/internal/engine"
	"scholarsource/internal/engine/docker"
	"scholarsource/internal/engine/remote"
	"scholarsource/internal/health"
	"scholarsource/internal/job"
	"scholarsource/internal/logging"
	"scholarsource/internal/notify"
	"scholarsource/internal/observability"
	"scholarsource/internal/store"
	"scholarsource/internal/tools"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

func main() {
	if err := run(); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	jobStore, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	defer jobStore.Close()

	parser, err := engine.NewParser(cfg.Engine.TitlePath, cfg.Engine.ResourcesPath)
	if err != nil {
		return fmt.Errorf("engine output paths: %w", err)
	}
	eng, closeEngine, err := newEngine(ctx, cfg, parser, logger)
	if err != nil {
		return err
	}
	defer closeEngine()

	eventDispatcher := dispatcher.NewMemory(dispatcher.Config{
		BufferSize:  cfg.Dispatcher.BufferSize,
		Workers:     cfg.Dispatcher.Workers,
		HTTPTimeout: cfg.Dispatcher.HTTPTimeout,
		UserAgent:   "ScholarSource/" + version,
	}, logger, metrics)

	var events job.EventPublisher
	if cfg.Notify.WebhookURL != "" {
		events = notify.NewLifecyclePublisher(eventDispatcher, cfg.Notify.WebhookURL, cfg.Notify.WebhookKey, logger)
	}

	jobService, err := job.NewService(job.Options{
		Store:         jobStore,
		Engine:        eng,
		Notifier:      newNotifier(cfg, eventDispatcher, logger),
		Runner:        job.NewRunner(job.RunnerConfig{Workers: cfg.Runner.Workers, QueueSize: cfg.Runner.QueueSize}, logger),
		Logger:        logger,
		Metrics:       metrics,
		Events:        events,
		EngineTimeout: cfg.Engine.Timeout,
	})
	if err != nil {
		return err
	}
	if _, err := jobService.Recover(ctx); err != nil {
		logger.Warn("Startup recovery failed", "error", err)
	}

	healthChecker := health.NewChecker().
		WithTimeout(cfg.Store.ProbeTimeout).
		Register(api.StoreCheck, health.ProbeFunc(jobStore.Ping)).
		Register("engine", eng)

	router := api.NewRouter(api.RouterConfig{
		JobService:     jobService,
		HealthChecker:  healthChecker,
		Metrics:        metrics,
		Logger:         logger,
		Version:        version,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
	})

	apiServer := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var toolsServer *http.Server
	if cfg.HTTP.ToolsAddr != "" {
		toolsRouter := api.NewToolsRouter(api.ToolsRouterConfig{
			Tools:   tools.NewRegistry(tools.NewWebPageFetcher()),
			Metrics: metrics,
			Logger:  logger,
		})
		toolsServer = &http.Server{
			Addr:              cfg.HTTP.ToolsAddr,
			Handler:           toolsRouter,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
		}
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + cfg.HTTP.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting API server", "port", cfg.HTTP.Port, "store", cfg.Store.Driver, "engine", eng.Name())
		return listen(apiServer)
	})
	g.Go(func() error {
		logger.Info("Starting metrics server", "port", cfg.HTTP.MetricsPort)
		return listen(metricsServer)
	})
	if toolsServer != nil {
		g.Go(func() error {
			logger.Info("Starting tools server", "addr", cfg.HTTP.ToolsAddr, "url", cfg.Engine.ToolsURL)
			return listen(toolsServer)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		signalled := ctx.Err() != nil

		// Phase 1: fail readiness so load balancers stop routing here.
		healthChecker.SetShuttingDown()
		if signalled && cfg.HTTP.ShutdownDrainWait > 0 {
			logger.Info("Waiting for traffic to drain", "duration", cfg.HTTP.ShutdownDrainWait)
			time.Sleep(cfg.HTTP.ShutdownDrainWait)
		}

		// Phase 2: stop accepting requests and finish in-flight ones.
		logger.Info("Starting graceful shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics server shutdown error", "error", err)
		}
		if toolsServer != nil {
			if err := toolsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("Tools server shutdown error", "error", err)
			}
		}

		// Phase 3: let running jobs finish, then flush their webhooks.
		if err := jobService.Close(shutdownCtx); err != nil {
			logger.Warn("Jobs still running at shutdown were cancelled", "error", err)
		}
		dispatcherCtx, dispatcherCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer dispatcherCancel()
		if err := eventDispatcher.Close(dispatcherCtx); err != nil {
			logger.Warn("Dispatcher shutdown error", "error", err)
		}
		stats := eventDispatcher.Stats()
		logger.Info("Dispatcher stats",
			"delivered", stats.Delivered,
			"failed", stats.Failed,
			"dropped", stats.Dropped,
		)
		return nil
	})

	err = g.Wait()
	logger.Info("Shutdown complete")
	return err
}

func listen(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// probedEngine is an engine that can report whether it is usable.
type probedEngine interface {
	job.Engine
	health.Probe
}

func newEngine(ctx context.Context, cfg *config.Config, parser *engine.Parser, logger *slog.Logger) (probedEngine, func() error, error) {
	switch cfg.Engine.Driver {
	case config.EngineDocker:
		eng, err := docker.New(ctx, cfg.Engine, parser, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("docker engine: %w", err)
		}
		logger.Info("Connected to Docker daemon", "image", cfg.Engine.Image)
		return eng, eng.Close, nil
	case config.EngineRemote:
		eng := remote.New(cfg.Engine.URL, cfg.Engine.ToolsURL, parser, logger)
		return eng, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown engine driver %q", cfg.Engine.Driver)
	}
}

func newNotifier(cfg *config.Config, d dispatcher.Dispatcher, logger *slog.Logger) *notify.Service {
	var sinks []notify.Sink
	if cfg.Notify.EmailEnabled() {
		sinks = append(sinks, notify.NewEmailSink(notify.EmailConfig{
			APIKey:        cfg.Notify.ResendAPIKey,
			APIURL:        cfg.Notify.ResendAPIURL,
			From:          cfg.Notify.FromEmail,
			PublicBaseURL: cfg.HTTP.PublicBaseURL,
		}, logger))
	}
	if cfg.Notify.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookSink(d, cfg.Notify.WebhookURL, cfg.Notify.WebhookKey))
	}
	if len(sinks) == 0 {
		logger.Info("Completion notifications disabled; set RESEND_API_KEY or NOTIFY_WEBHOOK_URL to enable")
	}
	return notify.New(logger, sinks...)
}
