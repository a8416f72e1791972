package ratelimit

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/ZanzyTHEbar/runway/internal/errors"
	"github.com/gin-gonic/gin"
)

// IPRateLimitMiddleware enforces the per-IP budget. A failing limiter never
// blocks the request.
func (rl *RateLimiter) IPRateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()

		result, err := rl.AllowIP(c.Request.Context(), ip)
		if err != nil {
			slog.Error("Rate limit check failed", "ip", ip, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitIPBlock()
			}

			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(result.RetryAfter)))
			errors.Respond(c, errors.NewRateLimitError(result.RetryAfter))
			return
		}

		c.Next()
	}
}

// HandleStatus reports the caller's remaining budget without spending it
func (rl *RateLimiter) HandleStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ip":         c.ClientIP(),
			"per_minute": rl.config.PerMinute,
			"backend":    rl.backend(),
			"stats":      rl.GetStats(),
			"timestamp":  time.Now().Format(time.RFC3339),
		})
	}
}

func (rl *RateLimiter) backend() string {
	if rl.redisLimiter != nil {
		return "redis"
	}
	return "memory"
}

func retryAfterSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
