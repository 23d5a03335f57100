package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/signalforge-go/internal/api"
	"github.com/irfndi/signalforge-go/internal/cache"
	"github.com/irfndi/signalforge-go/internal/config"
	"github.com/irfndi/signalforge-go/internal/database"
	"github.com/irfndi/signalforge-go/internal/logging"
	"github.com/irfndi/signalforge-go/internal/metrics"
	"github.com/irfndi/signalforge-go/internal/middleware"
	"github.com/irfndi/signalforge-go/internal/services"
	"github.com/irfndi/signalforge-go/internal/telemetry"
	"github.com/irfndi/signalforge-go/pkg/marketdata"
)

const serviceName = "signalforge-api"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.Environment)
	stdLogger := logging.WrapLogger(logger)

	otlpLogger, err := logging.NewOTLPLogger(logging.OTLPConfig{
		Enabled:        cfg.Telemetry.Enabled && cfg.Telemetry.ExportLogs,
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		Environment:    cfg.Environment,
		LogLevel:       cfg.LogLevel,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize log export: %w", err)
	}
	otlpLogger.Attach(logger)

	ctx := context.Background()
	tp, err := telemetry.InitTelemetry(ctx, cfg.Telemetry, cfg.Environment, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	reg := metrics.NewRegistry()

	var redisClient *database.RedisClient
	var barStore services.BarStore
	if cfg.Redis.Enabled {
		redisClient, err = database.NewRedisConnection(ctx, cfg.Redis, logger)
		if err != nil {
			// The API still serves uncached.
			logger.WithError(err).Warn("Redis unavailable, bar cache disabled")
			redisClient = nil
		} else {
			barStore = cache.NewBarCache(
				redisClient.Client,
				config.DurationOr(cfg.MarketData.CacheTTL, 15*time.Minute),
				config.DurationOr(cfg.MarketData.IntradayCacheTTL, time.Minute),
				reg,
				logger,
			)
		}
	}
	defer redisClient.Close()

	provider, ccxtClient := buildProvider(cfg, reg, logger)

	analyzer, err := services.NewAnalyzer(cfg.Analysis, logger)
	if err != nil {
		return fmt.Errorf("failed to create analyzer: %w", err)
	}
	analysisService := services.NewAnalysisService(analyzer, provider, barStore, reg, logger)

	deps := api.Dependencies{
		Analysis:       analysisService,
		Capital:        cfg.Analysis.Capital,
		Metrics:        reg,
		Admin:          middleware.NewAdminMiddleware(cfg.Admin.APIKeyHash),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		ServiceName:    cfg.Telemetry.ServiceName,
		Version:        cfg.Telemetry.ServiceVersion,
		Logger:         logger,
	}
	if redisClient != nil {
		deps.Redis = redisClient
	}
	if ccxtClient != nil {
		deps.CCXT = ccxtClient
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	api.SetupRoutes(router, deps)

	srv := newHTTPServer(cfg.Server, router)

	stopStats := make(chan struct{})
	go reportResourceStats(stdLogger, 5*time.Minute, stopStats)

	serverErr := make(chan error, 1)
	go func() {
		stdLogger.LogStartup(serviceName, cfg.Telemetry.ServiceVersion, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	reason := "signal"
	select {
	case sig := <-quit:
		reason = sig.String()
	case err := <-serverErr:
		close(stopStats)
		return fmt.Errorf("server failed: %w", err)
	}
	close(stopStats)
	stdLogger.LogShutdown(serviceName, reason)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Failed to shutdown tracer provider")
	}
	if err := otlpLogger.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Failed to flush exported logs")
	}

	logger.Info("Server exited")
	return nil
}

func resilienceConfig(cfg config.MarketDataConfig) marketdata.ResilienceConfig {
	return marketdata.ResilienceConfig{
		MaxRetries:      cfg.MaxRetries,
		RetryBackoff:    config.DurationOr(cfg.RetryBackoff, 500*time.Millisecond),
		BreakerFailures: cfg.BreakerFailures,
		BreakerTimeout:  config.DurationOr(cfg.BreakerTimeout, 30*time.Second),
	}
}

// buildProvider wraps Yahoo, and the CCXT bridge when configured, in
// resilient providers and routes crypto to the latter. The raw CCXT
// client is returned for health checks and is nil when disabled.
func buildProvider(cfg *config.Config, reg *metrics.Registry, logger *logrus.Logger) (marketdata.Provider, *marketdata.CCXTClient) {
	rc := resilienceConfig(cfg.MarketData)
	router := &marketdata.Router{
		Default: marketdata.NewResilientProvider(marketdata.NewYahooClient(cfg.MarketData, logger), rc, reg, logger),
	}

	ccxtClient := marketdata.NewCCXTClient(cfg.CCXT, cfg.MarketData.RequestsPerSecond, logger)
	if ccxtClient != nil {
		router.Crypto = marketdata.NewResilientProvider(ccxtClient, rc, reg, logger)
		logger.WithField("url", cfg.CCXT.GetServiceURL()).Info("Routing crypto through CCXT service")
	}
	return router, ccxtClient
}

func newHTTPServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	timeout := config.DurationOr(cfg.RequestTimeout, 30*time.Second)
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       timeout,
		WriteTimeout:      timeout,
		IdleTimeout:       2 * timeout,
	}
}

func reportResourceStats(logger *logging.StandardLogger, every time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			logger.LogResourceStats(serviceName, resourceStats())
		}
	}
}

func resourceStats() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return map[string]interface{}{
		"goroutines":     runtime.NumGoroutine(),
		"heap_alloc_mb":  m.HeapAlloc / 1024 / 1024,
		"heap_objects":   m.HeapObjects,
		"gc_cycles":      m.NumGC,
		"total_alloc_mb": m.TotalAlloc / 1024 / 1024,
	}
}
