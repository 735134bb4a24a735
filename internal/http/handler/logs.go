package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// LogTailer is implemented by *processmgr.LogManager.
type LogTailer interface {
	Tail(name string, n int) []string
}

const (
	defaultLogLines = 100
	maxLogLines     = 500
)

// CameraLogs handles GET /api/cameras/:cam/logs?lines=N and returns the
// recent transcoder output for the camera's stream and snapshot processes.
func CameraLogs(cams CameraLookup, logs LogTailer) gin.HandlerFunc {
	return func(c *gin.Context) {
		camID := c.Param("cam")
		if _, ok := cams.Find(camID); !ok {
			c.Status(http.StatusNotFound)
			return
		}

		n := defaultLogLines
		if raw := c.Query("lines"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil || v < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"message": "lines must be a positive integer"})
				return
			}
			n = min(v, maxLogLines)
		}

		c.JSON(http.StatusOK, gin.H{
			"cam":     camID,
			"stream":  nonNil(logs.Tail("stream:"+camID, n)),
			"capture": nonNil(logs.Tail("capture:"+camID, n)),
		})
	}
}

func nonNil(lines []string) []string {
	if lines == nil {
		return []string{}
	}
	return lines
}
