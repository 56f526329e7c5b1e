package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/orris-inc/subsync/internal/infrastructure/ratelimit"
	"github.com/orris-inc/subsync/internal/interfaces/http/handlers"
	"github.com/orris-inc/subsync/internal/interfaces/http/middleware"
)

// EntitlementRouteConfig holds dependencies for the session entitlement routes.
type EntitlementRouteConfig struct {
	EntitlementHandler *handlers.EntitlementHandler
	AuthMiddleware     *middleware.AuthMiddleware
	RateLimiter        *middleware.RateLimiter
	Limit              ratelimit.RateLimitConfig
}

// SetupEntitlementRoutes configures the routes a signed-in user calls.
// Routes: /entitlements/me/*
func SetupEntitlementRoutes(engine *gin.Engine, cfg *EntitlementRouteConfig) {
	me := engine.Group("/entitlements/me")
	me.Use(cfg.AuthMiddleware.RequireAuth(), cfg.RateLimiter.ByUser("session", cfg.Limit))
	{
		me.GET("", cfg.EntitlementHandler.GetMine)
		me.GET("/features/:feature", cfg.EntitlementHandler.CheckFeature)
		me.POST("/trial", cfg.EntitlementHandler.StartTrial)
		me.POST("/recover", cfg.EntitlementHandler.RecoverOrphans)
	}
}
