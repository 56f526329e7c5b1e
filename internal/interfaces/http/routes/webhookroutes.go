// Package routes provides HTTP route configurations.
package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/orris-inc/subsync/internal/infrastructure/ratelimit"
	"github.com/orris-inc/subsync/internal/interfaces/http/handlers"
	"github.com/orris-inc/subsync/internal/interfaces/http/middleware"
)

// WebhookRouteConfig holds dependencies for provider webhook routes.
type WebhookRouteConfig struct {
	WebhookHandler *handlers.WebhookHandler
	RateLimiter    *middleware.RateLimiter
	Limit          ratelimit.RateLimitConfig
}

// SetupWebhookRoutes configures provider webhook routes.
// Routes: /webhooks/*
// Webhooks are authenticated by their signature, not by a session.
func SetupWebhookRoutes(engine *gin.Engine, cfg *WebhookRouteConfig) {
	webhooks := engine.Group("/webhooks")
	webhooks.Use(cfg.RateLimiter.ByIP("webhook", cfg.Limit))
	{
		webhooks.POST("/stripe", cfg.WebhookHandler.HandleStripe)
	}
}
