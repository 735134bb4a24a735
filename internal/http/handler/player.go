package handler

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/edirooss/rtsplive-server/internal/domain/camera"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StreamRunner is implemented by *streaming.Supervisor.
type StreamRunner interface {
	Run(camID string) (string, error)
}

type PlayerOptions struct {
	AssetsDir     string
	Key           string
	RedirectURL   string
	AllowSeekBack bool
}

// PlayerHandler renders assets/player.html for one camera and turns its
// stream on.
type PlayerHandler struct {
	log  *zap.Logger
	svc  StreamRunner
	opts PlayerOptions
}

func NewPlayerHandler(log *zap.Logger, svc StreamRunner, opts PlayerOptions) *PlayerHandler {
	return &PlayerHandler{
		log:  log.Named("player"),
		svc:  svc,
		opts: opts,
	}
}

// Player handles GET /player?key&cam.
//
// Status Codes:
//   - 200 OK  → rendered page
//   - 404 Not Found → unknown camera
//   - 500 Internal Server Error → template unreadable
func (h *PlayerHandler) Player(c *gin.Context) {
	camID := c.Query("cam")

	playlist, err := h.svc.Run(camID)
	if err != nil {
		if errors.Is(err, camera.ErrNotFound) {
			c.Status(http.StatusNotFound)
			return
		}
		c.Error(err)
		c.Status(http.StatusInternalServerError)
		return
	}

	tplPath := filepath.Join(h.opts.AssetsDir, "player.html")
	tpl, err := os.ReadFile(tplPath)
	if err != nil {
		c.Error(fmt.Errorf("read player template: %w", err))
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Cache-Control", CacheControl(0))
	c.Data(http.StatusOK, ContentType(tplPath), []byte(h.render(string(tpl), camID, playlist)))
}

func (h *PlayerHandler) render(tpl, camID, playlist string) string {
	return strings.NewReplacer(
		"%key%", h.opts.Key,
		"%redirect_url_if_background%", h.opts.RedirectURL,
		"%hls_allow_video_seek_back%", strconv.FormatBool(h.opts.AllowSeekBack),
		"%path%", "/stream/"+camID+"/"+filepath.Base(playlist),
		"%cam%", camID,
	).Replace(tpl)
}
