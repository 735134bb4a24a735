package middleware

import (
	"errors"
	"time"

	"github.com/edirooss/rtsplive-server/internal/infrastructure/httpserver"
	"github.com/edirooss/rtsplive-server/internal/platform/metrics"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AccessLog records HTTP request/response details with Zap after handling,
// and feeds the request counter. Watchdog self-probes are not logged.
func AccessLog(log *zap.Logger, met *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		met.ObserveRequest(route, status)

		if c.GetHeader(httpserver.ProbeHeader) != "" {
			return
		}

		var errs []error
		for _, ge := range c.Errors {
			if ge.Err != nil {
				errs = append(errs, ge.Err)
			}
		}
		// errors.Join returns nil if errs is empty
		joinedErr := errors.Join(errs...)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
			zap.Duration("latency", time.Since(start)),
		}
		if id := GetRequestID(c); id != "" {
			fields = append(fields, zap.String("request_id", id))
		}
		if cam := c.Param("cam"); cam != "" {
			fields = append(fields, zap.String("cam", cam))
		} else if cam := c.Query("cam"); cam != "" {
			fields = append(fields, zap.String("cam", cam))
		}
		if joinedErr != nil {
			fields = append(fields, zap.Error(joinedErr))
		}

		switch {
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}
