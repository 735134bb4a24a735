package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/semaphore"
)

// LimitConcurrentRequests returns a Gin middleware that limits the number
// of concurrent HTTP requests being processed. A request waits up to `wait`
// for a slot; after that it is handed to `reject`, or answered with HTTP 429
// when reject is nil.
//
// We use it to protect downstream high-latency operations.
//
// Example usage:
//
//	router.GET("/image", LimitConcurrentRequests(64, 2*time.Second, nil), h.Image)
func LimitConcurrentRequests(maxConcurrent int, wait time.Duration, reject gin.HandlerFunc) gin.HandlerFunc {
	sem := semaphore.NewWeighted(int64(maxConcurrent))

	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), wait)
		err := sem.Acquire(ctx, 1)
		cancel()
		if err != nil {
			if reject != nil {
				reject(c)
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many concurrent requests",
			})
			return
		}
		defer sem.Release(1)
		c.Next()
	}
}
