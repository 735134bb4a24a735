package handler

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	mw "github.com/edirooss/rtsplive-server/internal/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Canaries is implemented by *streaming.Supervisor.
type Canaries interface {
	Canary(camID string)
}

// StreamHandler serves live HLS output. Playlist fetches require the key
// and count as viewer activity; segment names carry a key-derived token and
// are served without it.
type StreamHandler struct {
	log       *zap.Logger
	cams      CameraLookup
	canary    Canaries
	streamDir string
	assetsDir string
	key       []byte
}

func NewStreamHandler(log *zap.Logger, cams CameraLookup, canary Canaries, streamDir, assetsDir, key string) *StreamHandler {
	return &StreamHandler{
		log:       log.Named("stream"),
		cams:      cams,
		canary:    canary,
		streamDir: streamDir,
		assetsDir: assetsDir,
		key:       []byte(key),
	}
}

// File handles GET /stream/:cam/:file.
//
// Until the transcoder has written its first playlist and segments, the
// loading placeholders from the assets directory stand in for them.
func (h *StreamHandler) File(c *gin.Context) {
	camID := c.Param("cam")
	name := filepath.Base(c.Param("file"))
	isPlaylist := strings.HasSuffix(name, ".m3u8")

	if isPlaylist && !mw.KeyValid(c, h.key) {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	if _, ok := h.cams.Find(camID); !ok {
		c.Status(http.StatusNotFound)
		return
	}
	if isPlaylist {
		h.canary.Canary(camID)
	}

	path := filepath.Join(h.streamDir, camID, name)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		switch {
		case isPlaylist:
			path = filepath.Join(h.assetsDir, "loading.m3u8")
		case strings.HasSuffix(name, ".ts"):
			path = filepath.Join(h.assetsDir, "loading.ts")
		default:
			c.Status(http.StatusNotFound)
			return
		}
	}

	err := serveFile(c, path, 0)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		// pruned between stat and open
		c.Status(http.StatusNotFound)
	default:
		c.Error(err)
		c.Status(http.StatusInternalServerError)
	}
}
