package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"tasktracker/internal/pkg/metrics"
	"tasktracker/internal/pkg/ratelimit"
	"tasktracker/internal/pkg/seclog"

	"github.com/gin-gonic/gin"
)

// LoginRateLimit throttles login attempts per client IP. A nil limiter
// disables throttling. Redis errors fail open: a cache outage must not
// lock users out.
func LoginRateLimit(limiter *ratelimit.Limiter, events *seclog.Logger, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := limiter.Allow(c.Request.Context(), c.ClientIP(), time.Now().UnixMilli())
		if err != nil && logger != nil {
			logger.Warn("login rate limit check failed", slog.String("error", err.Error()))
		}
		if !allowed {
			events.Event("Login rate limit exceeded for " + c.ClientIP())
			if metrics.LoginThrottledTotal != nil {
				metrics.LoginThrottledTotal.Inc()
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"message": "Too many login attempts"})
			return
		}
		c.Next()
	}
}
