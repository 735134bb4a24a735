package middleware

import (
	"net/http"

	"github.com/edirooss/rtsplive-server/internal/domain/camera"
	"github.com/gin-gonic/gin"
)

// RequireValidCameraID ensures the camera id (":cam" path param, else the
// "cam" query parameter) is safe to use as a file name. Responds 400 otherwise.
func RequireValidCameraID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("cam")
		if id == "" {
			id = c.Query("cam")
		}
		if !camera.ValidID(id) {
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}
		c.Next()
	}
}
