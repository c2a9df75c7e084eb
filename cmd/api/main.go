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

	"github.com/coder/quartz"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpAdapter "github.com/lorrc/testit-reports/internal/adapters/primary/http"
	mw "github.com/lorrc/testit-reports/internal/adapters/primary/http/middleware"
	"github.com/lorrc/testit-reports/internal/adapters/primary/websocket"
	"github.com/lorrc/testit-reports/internal/adapters/secondary/postgres"
	"github.com/lorrc/testit-reports/internal/adapters/secondary/testit"
	"github.com/lorrc/testit-reports/internal/auth"
	"github.com/lorrc/testit-reports/internal/config"
	"github.com/lorrc/testit-reports/internal/core/services"
	"github.com/lorrc/testit-reports/internal/infrastructure/logging"
	"github.com/lorrc/testit-reports/internal/infrastructure/metrics"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize Structured Logger
	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stdout,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
	})

	logger.Info("starting service",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	// Everything long-lived hangs off this context; SIGINT/SIGTERM ends it.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Database
	if cfg.Database.AutoMigrate {
		if err := runMigrations(cfg.Database.MigrationsPath, cfg.Database.URL); err != nil {
			logger.Error("database migration failed", "error", err)
			os.Exit(1)
		}
		logger.Info("database migrations applied", "source", cfg.Database.MigrationsPath)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		logger.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.Database.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	logger.Info("database connection established")

	// 4. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.New(registry)

	// 5. TestIT client
	testitClient, err := testit.NewClient(testit.Config{
		BaseURL:              cfg.TestIT.BaseURL,
		Cookies:              cfg.TestIT.Cookies,
		UseCookies:           cfg.TestIT.UseCookies,
		Timeout:              cfg.TestIT.Timeout,
		RequestsPerSecond:    cfg.TestIT.RPS,
		Burst:                cfg.TestIT.Burst,
		MaxRetries:           uint64(cfg.TestIT.MaxRetries),
		RetryInitialInterval: 500 * time.Millisecond,
	}, appMetrics, logger)
	if err != nil {
		logger.Error("failed to create TestIT client", "error", err)
		os.Exit(1)
	}

	// 6. Dependency Injection (Wiring the Hexagon)
	clock := quartz.NewReal()
	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	txManager := postgres.NewTransactionManager(pool)
	projectRepo := postgres.NewProjectRepository(pool)
	groundTruthRepo := postgres.NewGroundTruthRepository(pool)
	caseCounterRepo := postgres.NewCaseCounterRepository(pool)
	runCounterRepo := postgres.NewRunCounterRepository(pool, txManager)
	collectionRunRepo := postgres.NewCollectionRunRepository(pool)

	resolver := services.NewCachedUsernameResolver(testitClient, cfg.Collector.UsernameCacheTTL, logger)
	groundTruth := services.NewGroundTruthService(groundTruthRepo, resolver, logger)
	workItems := services.NewWorkItemAggregator(testitClient, caseCounterRepo, resolver, logger)
	testRuns := services.NewTestRunAggregator(services.TestRunAggregatorConfig{
		PlanConcurrency: cfg.Collector.PlanConcurrency,
		PointPageSize:   cfg.Collector.PointPageSize,
	}, testitClient, groundTruth, runCounterRepo, resolver, clock, logger)
	collector := services.NewCollectionService(projectRepo, workItems, testRuns, collectionRunRepo, hub, appMetrics, clock, logger)
	statistics := services.NewStatisticsService(projectRepo, caseCounterRepo, runCounterRepo, groundTruth, collectionRunRepo)
	scheduler := services.NewSchedulerService(services.SchedulerConfig{
		Cron:               cfg.Collector.Cron,
		DefaultToken:       cfg.TestIT.Token,
		ProjectConcurrency: cfg.Collector.ProjectConcurrency,
		RunTimeout:         cfg.Collector.RunTimeout,
	}, projectRepo, collector, clock, logger)

	if cfg.Collector.Enabled {
		if err := scheduler.Start(ctx); err != nil {
			logger.Error("failed to start collection scheduler", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("collection scheduler disabled")
	}

	// 7. Rate Limiters
	var generalRateLimiter, triggerRateLimiter *mw.RateLimiter
	if cfg.RateLimit.Enabled {
		generalRateLimiter = mw.NewRateLimiter(ctx, mw.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.RateLimit.BurstSize,
			CleanupInterval:   time.Minute,
			TTL:               3 * time.Minute,
		})

		triggerRateLimiter = mw.NewRateLimiter(ctx, mw.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.TriggerRPS,
			BurstSize:         cfg.RateLimit.TriggerBurst,
			CleanupInterval:   time.Minute,
			TTL:               10 * time.Minute,
			KeyFunc:           mw.UserOrIPKey,
		})
	}

	// 8. Handlers (Primary Adapters)
	tokenManager := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)
	errorHandler := httpAdapter.NewErrorHandler(logger)
	runner := httpAdapter.NewBackgroundRunner(ctx, cfg.Collector.RunTimeout, logger)

	router := httpAdapter.NewRouter(httpAdapter.RouterConfig{
		Logger:         logger,
		Tokens:         tokenManager,
		AllowedOrigins: cfg.Server.CORSOrigins,
		GeneralLimiter: generalRateLimiter,
		TriggerLimiter: triggerRateLimiter,
		Metrics:        appMetrics.Middleware,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		Health:         httpAdapter.NewHealthHandler(pool, scheduler, cfg.App.Version),
		Statistics:     httpAdapter.NewStatisticsHandler(statistics, cfg.Collector.MaxRangeDays, errorHandler, logger),
		Collection: httpAdapter.NewCollectionHandler(httpAdapter.CollectionHandlerConfig{
			DefaultToken: cfg.TestIT.Token,
			MaxRangeDays: cfg.Collector.MaxRangeDays,
		}, scheduler, groundTruth, runner, errorHandler, logger),
		WebSocket: httpAdapter.NewWebSocketHandler(hub, tokenManager, cfg, logger),
	})

	// 9. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		logger.Error("server error", "error", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// ctx is already done, so running jobs are winding down; wait for them
	// before the pool closes.
	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn("scheduled collection did not stop in time")
	}
	if err := runner.Wait(shutdownCtx); err != nil {
		logger.Warn("manual collections did not stop in time", "error", err)
	}
	select {
	case <-hub.Done():
	case <-shutdownCtx.Done():
	}

	logger.Info("server shutdown complete")
}

// runMigrations applies every pending migration from sourceURL.
func runMigrations(sourceURL, databaseURL string) error {
	m, err := migrate.New(sourceURL, databaseURL)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
