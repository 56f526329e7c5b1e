package routes

import (
	"github.com/gin-gonic/gin"

	adminHandlers "github.com/orris-inc/subsync/internal/interfaces/http/handlers/admin"
	"github.com/orris-inc/subsync/internal/interfaces/http/middleware"
	"github.com/orris-inc/subsync/internal/shared/logger"
)

// AdminRouteConfig holds dependencies for admin-only routes.
type AdminRouteConfig struct {
	ReconciliationHandler *adminHandlers.ReconciliationHandler
	// AdminToken is the shared bearer token. Empty rejects every request.
	AdminToken string
	Logger     logger.Interface
}

// SetupAdminRoutes configures admin-only routes.
// Routes: /admin/*
func SetupAdminRoutes(engine *gin.Engine, cfg *AdminRouteConfig) {
	admin := engine.Group("/admin")
	admin.Use(middleware.RequireAdminToken(cfg.AdminToken, cfg.Logger))
	{
		admin.POST("/reconcile", cfg.ReconciliationHandler.Reconcile)
		admin.POST("/sync-customer", cfg.ReconciliationHandler.SyncCustomer)
		admin.POST("/health", cfg.ReconciliationHandler.HealthCheck)
		admin.POST("/orphans/recover", cfg.ReconciliationHandler.RecoverOrphans)
	}
}
