package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/File-Sharing-BondBridg/Asset-Service/internal/logging"
	"github.com/File-Sharing-BondBridg/Asset-Service/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

// RateLimit allows limit requests per caller and route in each fixed window.
// Store errors let the request through.
func RateLimit(store ratelimit.Store, limit int, window time.Duration, log logging.Logger) gin.HandlerFunc {
	if log == nil {
		log = logging.Nop()
	}
	return func(c *gin.Context) {
		if limit <= 0 || store == nil {
			c.Next()
			return
		}

		caller, ok := UserID(c)
		if !ok {
			caller = "ip:" + c.ClientIP()
		}
		route := c.Request.Method + " " + c.FullPath()

		count, err := store.Incr(c.Request.Context(), ratelimit.Key(caller, route), window)
		if err != nil {
			log.Warn(c.Request.Context(), "rate limit store unavailable, allowing request", "route", route, "error", err)
			c.Next()
			return
		}

		remaining := int64(limit) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(limit) {
			reset := time.Now().UTC().Truncate(window).Add(window)
			c.Header("Retry-After", strconv.Itoa(int(time.Until(reset).Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
