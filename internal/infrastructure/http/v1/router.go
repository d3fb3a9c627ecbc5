// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ledgertx/internal/core/idempotency"
	"ledgertx/internal/domain/account"
	"ledgertx/internal/infrastructure/http/v1/handlers"
	"ledgertx/internal/infrastructure/http/v1/middleware"
	"ledgertx/internal/telemetry"
	"ledgertx/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// Database backs the readiness probe; nil when running on the memory store
	Database handlers.Database

	Accounts  account.Repository
	Transfers handlers.Transferer

	// Idempotency enables X-Idempotency-Key handling on mutating API calls
	Idempotency idempotency.Store

	// Metrics and Gatherer are optional; /metrics is served only when both are set
	Metrics  *telemetry.Metrics
	Gatherer prometheus.Gatherer

	Version string
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	if cfg.Metrics != nil {
		router.Use(middleware.Metrics(cfg.Metrics))
	}
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.Database, cfg.Version)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	if cfg.Metrics != nil && cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/api/v1")
	if cfg.Idempotency != nil {
		v1.Use(middleware.Idempotency(cfg.Idempotency))
	}
	{
		registerAccountRoutes(v1, cfg)
		registerTransferRoutes(v1, cfg)
	}

	return router
}

// registerAccountRoutes registers account endpoints.
func registerAccountRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	handler := handlers.NewAccountHandler(handlers.NewBaseHandler(), cfg.Accounts)

	accounts := rg.Group("/accounts")
	accounts.POST("", handler.Create)
	accounts.GET("", handler.List)
	accounts.GET("/:id", handler.Get)
	accounts.DELETE("/:id", handler.Delete)
}

// registerTransferRoutes registers transfer endpoints.
func registerTransferRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	handler := handlers.NewTransferHandler(handlers.NewBaseHandler(), cfg.Transfers)
	rg.POST("/transfers", handler.Create)
}
