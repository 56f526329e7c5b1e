package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orris-inc/subsync/internal/infrastructure/ratelimit"
	"github.com/orris-inc/subsync/internal/shared/constants"
	"github.com/orris-inc/subsync/internal/shared/logger"
	"github.com/orris-inc/subsync/internal/shared/utils"
)

// RateLimiter applies a ratelimit.RateLimiter to a route group.
type RateLimiter struct {
	limiter ratelimit.RateLimiter
	logger  logger.Interface
}

func NewRateLimiter(limiter ratelimit.RateLimiter, logger logger.Interface) *RateLimiter {
	return &RateLimiter{limiter: limiter, logger: logger}
}

// ByIP limits per client IP under the given scope name.
func (rl *RateLimiter) ByIP(scope string, config ratelimit.RateLimitConfig) gin.HandlerFunc {
	return rl.limit(config, func(c *gin.Context) string {
		return scope + ":ip:" + c.ClientIP()
	})
}

// ByUser limits per authenticated user, falling back to the client IP. It
// must run after RequireAuth.
func (rl *RateLimiter) ByUser(scope string, config ratelimit.RateLimitConfig) gin.HandlerFunc {
	return rl.limit(config, func(c *gin.Context) string {
		if userID := c.GetString(constants.ContextKeyUserID); userID != "" {
			return scope + ":user:" + userID
		}
		return scope + ":ip:" + c.ClientIP()
	})
}

func (rl *RateLimiter) limit(config ratelimit.RateLimitConfig, keyFn func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl == nil || rl.limiter == nil {
			c.Next()
			return
		}

		key := keyFn(c)
		allowed, err := rl.limiter.Allow(c.Request.Context(), key, config)
		if err != nil {
			// fail open: a Redis outage must not drop provider webhooks
			rl.logger.Warnw("rate limiter unavailable, allowing request", "key", key, "error", err)
			c.Next()
			return
		}

		if !allowed {
			utils.ErrorResponse(c, http.StatusTooManyRequests, "rate limit exceeded, please try again later")
			c.Abort()
			return
		}

		c.Next()
	}
}
