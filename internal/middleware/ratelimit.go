package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sitewise/platform/internal/domain/ratelimit"
)

// RateLimit enforces the global limit plus a per-caller limit: per-user
// for identified requests, per-IP otherwise. The counter store behind
// the limiter decides whether limits are per-process or shared.
func RateLimit(limiter ratelimit.Limiter, config *ratelimit.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var key string
		var limits ratelimit.WindowConfig

		if identity, ok := CurrentIdentity(c); ok {
			key = fmt.Sprintf("user:%s", identity.UserID)
			limits = config.PerUser
		} else {
			key = fmt.Sprintf("ip:%s", c.ClientIP())
			limits = config.PerIP
		}

		globalResult, err := limiter.Check(c.Request.Context(), "global", config.Global.Limit, config.Global.Window)
		if err != nil {
			abortWithError(c, http.StatusInternalServerError, "RATE_LIMIT_ERROR", "Rate limiting service unavailable")
			return
		}
		if !globalResult.Allowed {
			setRateLimitHeaders(c, globalResult)
			c.JSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error": gin.H{
					"code":        "GLOBAL_RATE_LIMIT_EXCEEDED",
					"message":     "Global rate limit exceeded",
					"retry_after": int(globalResult.RetryAfter.Seconds()),
				},
			})
			c.Abort()
			return
		}

		result, err := limiter.Check(c.Request.Context(), key, limits.Limit, limits.Window)
		if err != nil {
			abortWithError(c, http.StatusInternalServerError, "RATE_LIMIT_ERROR", "Rate limiting service unavailable")
			return
		}

		setRateLimitHeaders(c, result)

		if !result.Allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error": gin.H{
					"code":        "RATE_LIMIT_EXCEEDED",
					"message":     "Rate limit exceeded",
					"limit":       result.Limit,
					"remaining":   result.Remaining,
					"reset_at":    result.ResetTime.Unix(),
					"retry_after": int(result.RetryAfter.Seconds()),
				},
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

func setRateLimitHeaders(c *gin.Context, result *ratelimit.Result) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetTime.Unix(), 10))

	if result.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
	}
}
