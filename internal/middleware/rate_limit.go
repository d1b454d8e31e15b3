package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"shopchat/pkg/limiter"
	"shopchat/pkg/log"
	"shopchat/pkg/utils"
)

// RateLimitConfig rate limiting middleware configuration
type RateLimitConfig struct {
	Limiter limiter.RateLimiter
	// KeyFunc selects the bucket for a request, the tenant or client IP by default
	KeyFunc func(c *gin.Context) string
}

// RateLimit limits each authenticated tenant, or the client IP before auth. A nil limiter disables it.
func RateLimit(l limiter.RateLimiter) gin.HandlerFunc {
	return RateLimitWithConfig(RateLimitConfig{Limiter: l})
}

// RateLimitWithConfig rate limiting middleware with configuration. A limiter
// error lets the request through.
func RateLimitWithConfig(config RateLimitConfig) gin.HandlerFunc {
	if config.Limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	if config.KeyFunc == nil {
		config.KeyFunc = tenantOrIP
	}

	return func(c *gin.Context) {
		key := config.KeyFunc(c)
		allowed, err := config.Limiter.Allow(c.Request.Context(), key)
		if err != nil {
			log.WithFields(map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			}).Warn("Rate limiter unavailable, allowing request")
			c.Next()
			return
		}
		if !allowed {
			log.WithFields(map[string]interface{}{
				"key":    key,
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
			}).Warn("Rate limit exceeded")

			c.Header("Retry-After", "1")
			utils.Error(c, utils.CodeRateLimit, "Too many requests")
			return
		}
		c.Next()
	}
}

func tenantOrIP(c *gin.Context) string {
	if userID, ok := GetUserID(c); ok {
		return fmt.Sprintf("user:%d", userID)
	}
	return "ip:" + c.ClientIP()
}
