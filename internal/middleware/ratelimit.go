package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimit allows each caller rps requests per second with bursts of burst.
// Authenticated callers are keyed by user id, everyone else by client IP.
// A non-positive rps disables limiting.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	var (
		mu       sync.Mutex
		limiters = make(map[string]*rate.Limiter)
	)
	limiterFor := func(key string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()

		if limiter, ok := limiters[key]; ok {
			return limiter
		}
		limiter := rate.NewLimiter(rate.Limit(rps), burst)
		limiters[key] = limiter
		return limiter
	}

	return func(c *gin.Context) {
		key := c.GetString(UserIDKey)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}
		if !limiterFor(key).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests", "retryable": true})
			return
		}
		c.Next()
	}
}
