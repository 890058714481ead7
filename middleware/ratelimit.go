package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"depth-studio-backend/internal/config"
	"depth-studio-backend/internal/logger"
	"depth-studio-backend/utils"
)

// RateLimitMiddleware implements fixed-window rate limiting using Redis.
// It limits requests per IP + endpoint combination and fails open when Redis
// is unavailable.
func RateLimitMiddleware(rdb *redis.Client, cfg *config.Config) gin.HandlerFunc {
	window := time.Duration(cfg.RateLimitWindow) * time.Second

	return func(c *gin.Context) {
		// Skip rate limiting for health checks and scrapes
		if c.FullPath() == "/health" || c.FullPath() == "/metrics" {
			c.Next()
			return
		}

		key := "ratelimit:" + c.ClientIP() + ":" + c.FullPath()

		ctx, cancel := utils.WithShortTimeout(c.Request.Context())
		defer cancel()

		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			logger.Warn("Rate limiter unavailable, allowing request",
				"request_id", GetRequestID(c),
				"error", err,
			)
			c.Next()
			return
		}

		// Set expiration on first request
		if count == 1 {
			if err := rdb.Expire(ctx, key, window).Err(); err != nil {
				logger.Warn("Failed to set rate limit expiry", "key", key, "error", err)
			}
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.RateLimitReqs))

		if count > int64(cfg.RateLimitReqs) {
			ttl, err := rdb.TTL(ctx, key).Result()
			if err != nil || ttl < 0 {
				ttl = window
			}
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(ttl).Unix(), 10))
			c.Header("Retry-After", strconv.Itoa(int(ttl.Seconds())))

			utils.AbortWithError(c, http.StatusTooManyRequests, "Too many requests. Please try again later.")
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(cfg.RateLimitReqs-int(count)))
		c.Next()
	}
}
