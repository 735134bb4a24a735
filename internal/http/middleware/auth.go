package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireKey blocks access unless the "key" query parameter matches key.
// Responds with 401 Unauthorized otherwise.
func RequireKey(key string) gin.HandlerFunc {
	want := []byte(key)
	return func(c *gin.Context) {
		if !KeyValid(c, want) {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}

// KeyValid compares the request's "key" query parameter in constant time.
// Handlers that only guard some of their files call it directly.
func KeyValid(c *gin.Context, want []byte) bool {
	got := c.Query("key")
	if got == "" || len(want) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), want) == 1
}
