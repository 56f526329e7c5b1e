package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/orris-inc/subsync/internal/infrastructure/config"
	"github.com/orris-inc/subsync/internal/infrastructure/ratelimit"
	"github.com/orris-inc/subsync/internal/interfaces/http/middleware"
	"github.com/orris-inc/subsync/internal/interfaces/http/routes"
	"github.com/orris-inc/subsync/internal/shared/logger"
	"github.com/orris-inc/subsync/internal/shared/utils"
	"github.com/orris-inc/subsync/internal/shared/version"
)

var (
	// webhookLimit is per source IP. The provider delivers from a small pool
	// of addresses, so it is generous.
	webhookLimit = ratelimit.RateLimitConfig{RequestsPerMinute: 600, RequestsPerHour: 20000}
	sessionLimit = ratelimit.RateLimitConfig{RequestsPerMinute: 60, RequestsPerHour: 1000}
)

// Router represents the HTTP router configuration
type Router struct {
	*Container
	gatherer prometheus.Gatherer
}

// NewRouter creates a new HTTP router with all dependencies. redisClient may be
// nil. reg and gatherer default to the prometheus default registry.
func NewRouter(
	database *gorm.DB,
	redisClient *redis.Client,
	cfg *config.Config,
	reg prometheus.Registerer,
	gatherer prometheus.Gatherer,
	log logger.Interface,
) (*Router, error) {
	c, err := NewContainer(database, redisClient, cfg, reg, log)
	if err != nil {
		return nil, err
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Router{Container: c, gatherer: gatherer}, nil
}

// SetupRoutes configures all HTTP routes
func (r *Router) SetupRoutes() {
	r.engine.Use(middleware.RequestID())
	r.engine.Use(middleware.CustomLogger(r.log))
	r.engine.Use(middleware.Recovery(r.log))
	r.engine.Use(middleware.CORS(r.cfg.Server.AllowedOrigins))

	r.engine.GET("/health", r.healthCheck)
	r.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))

	routes.SetupWebhookRoutes(r.engine, &routes.WebhookRouteConfig{
		WebhookHandler: r.hdlrs.webhookHandler,
		RateLimiter:    r.rateLimiter,
		Limit:          webhookLimit,
	})

	routes.SetupEntitlementRoutes(r.engine, &routes.EntitlementRouteConfig{
		EntitlementHandler: r.hdlrs.entitlementHandler,
		AuthMiddleware:     r.authMiddleware,
		RateLimiter:        r.rateLimiter,
		Limit:              sessionLimit,
	})

	routes.SetupAdminRoutes(r.engine, &routes.AdminRouteConfig{
		ReconciliationHandler: r.hdlrs.reconciliationHandler,
		AdminToken:            r.cfg.Auth.AdminToken,
		Logger:                r.log.Named("admin"),
	})
}

func (r *Router) healthCheck(c *gin.Context) {
	sqlDB, err := r.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		r.log.Warnw("health check database ping failed", "error", err)
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", gin.H{"status": "ok", "version": version.String()})
}

// GetEngine returns the Gin engine
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}

// Run starts the HTTP server
func (r *Router) Run(addr string) error {
	return r.engine.Run(addr)
}
