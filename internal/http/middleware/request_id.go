package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const RequestIDKey = "request_id"

// RequestID makes sure every request carries an identifier. A client-supplied
// X-Request-ID of 1..64 bytes is kept, anything else is replaced by a UUID.
// The id is echoed in the response and stored in the Gin context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if l := len(requestID); l < 1 || l > 64 {
			requestID = uuid.New().String()
		}

		c.Header("X-Request-ID", requestID)
		c.Set(RequestIDKey, requestID)

		c.Next()
	}
}

// GetRequestID retrieves the request ID from the Gin context.
// Returns empty string if no request ID is found.
func GetRequestID(c *gin.Context) string {
	if requestID, exists := c.Get(RequestIDKey); exists {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return ""
}

// Logger returns base annotated with the request ID, for handler logs that
// should correlate with the access log line.
func Logger(c *gin.Context, base *zap.Logger) *zap.Logger {
	if id := GetRequestID(c); id != "" {
		return base.With(zap.String("request_id", id))
	}
	return base
}
