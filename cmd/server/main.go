// Package main is the entry point for the ledgertx API server.
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

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"ledgertx/internal/app"
	"ledgertx/internal/config"
	"ledgertx/internal/core/idempotency"
	"ledgertx/internal/domain/transfer"
	v1 "ledgertx/internal/infrastructure/http/v1"
	"ledgertx/internal/infrastructure/http/v1/handlers"
	"ledgertx/internal/telemetry"
	"ledgertx/pkg/logger"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		Name:        "ledgertx-server",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	ctx := logger.WithLogger(context.Background(), log)
	log.Infow("starting ledgertx server", "store", cfg.Store, "version", version)

	// --- Metrics ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(reg)

	// --- Store and transfer service ---
	application, err := app.Build(ctx, cfg, cfg.Store, transfer.WithObserver(metrics))
	if err != nil {
		log.Fatalw("failed to build application", "error", err)
	}
	defer application.Close()

	if err := application.Migrate(ctx); err != nil {
		log.Fatalw("failed to migrate schema", "error", err)
	}

	var db handlers.Database
	if application.Pool != nil {
		db = application.Pool
		application.Pool.LogStats(ctx)
	}

	// --- Router ---
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := v1.NewRouter(v1.RouterConfig{
		Logger:      log,
		Database:    db,
		Accounts:    application.Accounts,
		Transfers:   application.Transfer,
		Idempotency: application.Idempotency,
		Metrics:     metrics,
		Gatherer:    reg,
		Version:     version,
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      gzhttp.GzipHandler(router),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.HTTP.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Idempotency key cleanup ---
	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	if application.Idempotency != nil {
		go cleanupIdempotencyKeys(janitorCtx, application.Idempotency, cfg.HTTP.IdempotencyTTL)
	}

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	stopJanitor()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

// cleanupIdempotencyKeys removes expired keys every ttl until ctx is done.
func cleanupIdempotencyKeys(ctx context.Context, store idempotency.Store, ttl time.Duration) {
	ticker := time.NewTicker(ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.CleanupExpired(ctx)
			if err != nil {
				logger.Warn(ctx, "idempotency cleanup failed", "error", err)
				continue
			}
			logger.Debug(ctx, "idempotency keys cleaned", "removed", n)
		}
	}
}
