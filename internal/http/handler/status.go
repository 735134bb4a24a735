package handler

import (
	"net/http"
	"strconv"

	"github.com/edirooss/rtsplive-server/internal/service"
	"github.com/gin-gonic/gin"
)

// StatusGetter is implemented by *service.StatusService.
type StatusGetter interface {
	Get() service.StatusResult
}

// Status handles GET /api/status.
func Status(svc StatusGetter) gin.HandlerFunc {
	return func(c *gin.Context) {
		res := svc.Get()

		c.Header("X-Cache", map[bool]string{true: "HIT", false: "MISS"}[res.CacheHit])
		c.Header("X-Summary-Generated-At", strconv.FormatInt(res.GeneratedAt.UnixMilli(), 10))
		c.Header("X-Total-Count", strconv.Itoa(len(res.Data)))

		c.JSON(http.StatusOK, res.Data)
	}
}
