// Package main is the entrypoint for the PulseDesk API server.
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

	"github.com/powerpulse/pulsedesk/internal/analytics"
	"github.com/powerpulse/pulsedesk/internal/api"
	"github.com/powerpulse/pulsedesk/internal/api/handler"
	mw "github.com/powerpulse/pulsedesk/internal/api/middleware"
	"github.com/powerpulse/pulsedesk/internal/backend"
	"github.com/powerpulse/pulsedesk/internal/cache"
	"github.com/powerpulse/pulsedesk/internal/config"
	"github.com/powerpulse/pulsedesk/internal/pipeline"
	"github.com/powerpulse/pulsedesk/internal/progress"
	"github.com/powerpulse/pulsedesk/internal/scheduler"
	"github.com/powerpulse/pulsedesk/internal/scoring"
	"github.com/powerpulse/pulsedesk/internal/store"
)

const (
	shutdownTimeout = 30 * time.Second
	metricsCacheTTL = 5 * time.Minute
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "scoring_provider", cfg.Backend.Provider, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create scoring backend
	scoringBackend, err := backend.New(cfg.Backend)
	if err != nil {
		return fmt.Errorf("create scoring backend: %w", err)
	}
	slog.Info("scoring backend initialized", "provider", scoringBackend.Name())

	// 6. Wire the pipeline
	pgStore := store.NewPostgresStore(pool)
	tracker := progress.NewTracker(cfg.Progress.MaxErrors)

	sched, err := scheduler.New(pgStore, scoringBackend, tracker, scoring.DefaultWeights, cfg.Backend.Concurrency)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	metricsService := analytics.NewService(pgStore, redisCache, metricsCacheTTL)
	uploads := pipeline.NewService(pgStore, redisCache, tracker, sched, metricsService, cfg.Batch)

	// Old tracker entries are swept in the background so memory stays bounded.
	go sweepTracker(ctx, tracker, cfg.Progress.MaxAge)

	// 7. Build router with dependencies
	deps := api.Dependencies{
		RateLimit: mw.NewRateLimit(redisCache, cfg.Server.RequestsPerMinute),

		HealthHandler:            handler.NewHealthHandler(pgStore, redisCache),
		UploadHandler:            handler.NewUploadHandler(uploads),
		ActiveUploadsHandler:     handler.NewActiveUploadsHandler(tracker),
		ProgressHandler:          handler.NewProgressHandler(tracker, redisCache),
		MetricsHandler:           handler.NewMetricsHandler(metricsService),
		HistoricalMetricsHandler: handler.NewHistoricalMetricsHandler(metricsService),
		ListConversations:        handler.NewListConversationsHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

func sweepTracker(ctx context.Context, tracker *progress.Tracker, maxAge time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := tracker.Cleanup(maxAge); removed > 0 {
				slog.Info("swept stale upload trackers", "removed", removed)
			}
		}
	}
}
