// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"kardex/internal/domain/ledger"
	"kardex/internal/infrastructure/http/v1/handlers"
	"kardex/internal/infrastructure/http/v1/middleware"
	"kardex/internal/infrastructure/storage/postgres"
	"kardex/pkg/logger"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	// LedgerService is the fulfillment orchestrator behind every
	// ledger endpoint.
	LedgerService *ledger.Service

	// Pool is the database connection pool (for readiness checks).
	// Nil when the service runs on the in-memory store.
	Pool *postgres.Pool

	// Audit serves the adjustment audit trail. Nil when the service
	// runs without the Postgres audit store.
	Audit *postgres.AuditService

	// Logger for request logging
	Logger *logger.Logger
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints, no company scope required
	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	// API v1: every ledger route runs under an explicit company scope
	apiV1 := router.Group("/api/v1")
	apiV1.Use(middleware.Actor())
	{
		registerLedgerRoutes(apiV1, cfg)
	}

	return router
}

func registerLedgerRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	baseHandler := handlers.NewBaseHandler()
	handler := handlers.NewLedgerHandler(baseHandler, cfg.LedgerService)

	group := rg.Group("/ledger")
	{
		group.POST("/fulfill", handler.Fulfill)
		group.POST("/receive", handler.Receive)
		group.POST("/inbound", handler.Inbound)
		group.POST("/withdraw", handler.Withdraw)
		group.POST("/adjust", handler.Adjust)
		group.POST("/returns/supplier", handler.ReturnToSupplier)
		group.POST("/returns/customer", handler.ReturnFromCustomer)
		group.POST("/transfer", handler.Transfer)
		group.POST("/rebuild", handler.Rebuild)
		group.POST("/quarantine/clear", handler.ClearQuarantine)

		group.GET("/balances", handler.GetBalances)
		group.GET("/movements", handler.GetMovements)
		group.GET("/turnovers", handler.GetTurnovers)
		group.GET("/plan", handler.GetPlan)
	}

	if cfg.Audit != nil {
		auditHandler := handlers.NewAuditHandler(baseHandler, cfg.Audit)
		group.GET("/audit/:movementId", auditHandler.GetMovementHistory)
	}
}
