// ============================================================================
// MAIN.GO - APPLICATION ENTRY POINT
// ============================================================================
// Startup flow for the edge link-resolution service:
//
//   config -> logger -> Postgres pool -> Redis client -> dependency graph
//   (cache tier, resolver, reputation filter, decision engine, click
//   recorder) -> routes -> middleware chain -> HTTP server -> graceful
//   shutdown (stop intake, drain clicks, close pools)
//
// Dependencies are wired manually, constructor by constructor, so the
// graph is explicit and testable.
// ============================================================================

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"linkedge/internal/cache"
	"linkedge/internal/classifier"
	"linkedge/internal/clicks"
	"linkedge/internal/config"
	"linkedge/internal/engine"
	edgehttp "linkedge/internal/handler/http"
	"linkedge/internal/ratelimit"
	"linkedge/internal/reputation"
	"linkedge/internal/repository/postgres"
	"linkedge/internal/resolver"
	"linkedge/pkg/logger"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// ------------------------------------------------------------------
	// Configuration and logging
	// ------------------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger := logger.New(cfg.App.LogLevel)
	appLogger.Info("Starting edge resolver",
		"environment", cfg.App.Environment,
		"port", cfg.Server.Port,
	)

	// ------------------------------------------------------------------
	// Backing stores: Postgres (source of truth + click sink), Redis
	// (cache tier + rate-limit counters)
	// ------------------------------------------------------------------
	ctx := context.Background()
	db, err := postgres.InitDB(
		ctx,
		cfg.Database.DatabaseDSN(),
		cfg.Database.MaxOpenConns,
		cfg.Database.MinIdleConns,
		cfg.Database.ConnMaxLifetime,
	)
	if err != nil {
		appLogger.Error("Failed to connect to database", "error", err)
		log.Fatalf("Database connection failed: %v", err)
	}
	defer db.Close()
	appLogger.Info("Database connection established")

	redisClient, err := cache.InitRedis(cfg.Redis.RedisAddr(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		appLogger.Error("Failed to connect to Redis", "error", err)
		log.Fatalf("Redis connection failed: %v", err)
	}
	defer redisClient.Close()
	appLogger.Info("Redis connection established")

	// ------------------------------------------------------------------
	// Dependency graph
	// ------------------------------------------------------------------
	linkStore := postgres.NewLinkRepository(db)
	domainStore := postgres.NewDomainRepository(db)
	clickStore := postgres.NewClickRepository(db)

	edgeCache := cache.New(redisClient, cfg.Edge.PositiveTTL, cfg.Edge.NegativeTTL)

	repFilter, err := reputation.NewFromFile(cfg.Reputation.FilePath, appLogger)
	if err != nil {
		appLogger.Error("Failed to load reputation config", "error", err)
		log.Fatalf("Reputation config failed: %v", err)
	}
	defer repFilter.Close()

	requestClassifier := classifier.New(
		cfg.Edge.AppDomains,
		cfg.Edge.DefaultDomains,
		cfg.Edge.CaseSensitiveDomains,
		repFilter,
	)

	linkResolver := resolver.New(edgeCache, linkStore, domainStore, cfg.Edge.LookupTimeout, appLogger)

	decisionEngine := engine.New(repFilter)
	renderer := engine.NewRenderer(appLogger)

	// Keep the interface nil when clicks are disabled; a typed-nil
	// *clicks.Recorder would pass the handler's nil check and then panic
	var recorder *clicks.Recorder
	var clickIntake edgehttp.ClickRecorder
	if cfg.Clicks.Enabled {
		recorder = clicks.NewRecorder(clickStore, cfg.Clicks.QueueSize, cfg.Clicks.Workers, appLogger)
		clickIntake = recorder
	}

	handler := edgehttp.NewHandler(
		requestClassifier,
		linkResolver,
		decisionEngine,
		renderer,
		clickIntake,
		appLogger,
	)

	// ------------------------------------------------------------------
	// Routes and middleware
	// ------------------------------------------------------------------
	mux := http.NewServeMux()

	mux.HandleFunc("/health/live", handler.HealthCheck)
	mux.Handle("/metrics", promhttp.Handler())

	// Catch-all: every other host+path is edge traffic.
	// Must be registered last because "/" matches everything.
	mux.HandleFunc("/", handler.Serve)

	middlewares := []func(http.Handler) http.Handler{
		edgehttp.RecoveryMiddleware(appLogger),
		edgehttp.LoggingMiddleware(appLogger),
		edgehttp.RequestIDMiddleware,
		edgehttp.MetricsMiddleware,
	}
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.NewFixedWindowLimiter(redisClient, cfg.RateLimit.RedirectPerWindow, cfg.RateLimit.Window)
		middlewares = append(middlewares, edgehttp.RateLimitMiddleware(limiter, appLogger))
	}
	finalHandler := edgehttp.Chain(middlewares...)(mux)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      finalHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// ------------------------------------------------------------------
	// Serve, then shut down gracefully on SIGINT/SIGTERM: stop accepting
	// requests, let in-flight redirects finish, drain the click queue
	// ------------------------------------------------------------------
	go func() {
		appLogger.Info("Server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed", "error", err)
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server shutdown failed", "error", err)
	}

	if recorder != nil {
		drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.Clicks.DrainTimeout)
		defer drainCancel()
		if err := recorder.Close(drainCtx); err != nil {
			appLogger.Warn("Click queue not fully drained", "error", err)
		}
	}

	appLogger.Info("Shutdown complete")
}
