package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/ecw-bridge/internal/api/router"
	"github.com/wolfman30/ecw-bridge/internal/app/bootstrap"
	appconfig "github.com/wolfman30/ecw-bridge/internal/config"
	"github.com/wolfman30/ecw-bridge/internal/http/handlers"
	"github.com/wolfman30/ecw-bridge/internal/observability/metrics"
	"github.com/wolfman30/ecw-bridge/pkg/logging"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.NewWithWriter(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting ecw-bridge API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	handler, cleanup, err := buildHandler(context.Background(), cfg, prometheus.NewRegistry(), logger)
	if err != nil {
		logger.Error("failed to build API", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: serverWriteTimeout(cfg),
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// setupMetrics registers the portal collectors on reg and returns the
// /metrics handler for it.
func setupMetrics(reg *prometheus.Registry) (http.Handler, *metrics.PortalMetrics) {
	portalMetrics := metrics.NewPortalMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), portalMetrics
}

// buildHandler wires the router. The returned cleanup closes the Redis client
// when one was opened.
func buildHandler(ctx context.Context, cfg *appconfig.Config, reg *prometheus.Registry, logger *logging.Logger) (http.Handler, func(), error) {
	metricsHandler, portalMetrics := setupMetrics(reg)

	factory, err := bootstrap.BuildIntegrationFactory(cfg, logger, portalMetrics)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {}
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	ecwCfg := handlers.ECWHandlerConfig{
		NewIntegration: factory,
		Gatherer:       reg,
		Logger:         logger,
	}
	if store := bootstrap.BuildSessionStore(redisClient, cfg); store != nil {
		ecwCfg.Sessions = store
		cleanup = func() { _ = redisClient.Close() }
		logger.Info("portal session store enabled", "ttl", store.TTL())
	} else {
		logger.Info("portal session store disabled; callers must send token headers")
	}
	if cfg.APIJWTSecret == "" {
		logger.Warn("API_JWT_SECRET not set; /ecw routes are unauthenticated")
	}

	r := router.New(&router.Config{
		Logger:             logger,
		ECWHandler:         handlers.NewECWHandler(ecwCfg),
		HealthHandler:      handlers.NewHealthHandler(bootstrap.RedisHealthCheck(redisClient)),
		MetricsHandler:     metricsHandler,
		APIJWTSecret:       cfg.APIJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		CORSAllowedHeaders: cfg.CORSAllowedHeaders,
		CORSMaxAge:         cfg.CORSMaxAge,
	})
	return r, cleanup, nil
}

// serverWriteTimeout leaves room for a multi-call portal flow on top of the
// per-call timeout.
func serverWriteTimeout(cfg *appconfig.Config) time.Duration {
	const floor = 60 * time.Second
	if cfg == nil || cfg.ECWHTTPTimeout <= 0 {
		return floor
	}
	if t := 10 * cfg.ECWHTTPTimeout; t > floor {
		return t
	}
	return floor
}
