package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/edirooss/rtsplive-server/internal/domain/camera"
	mw "github.com/edirooss/rtsplive-server/internal/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Capturer is implemented by *capture.Manager.
type Capturer interface {
	Run(ctx context.Context, camID string) (string, error)
	CacheExpire() time.Duration
}

const (
	imageReadAttempts = 3
	imageReadDelay    = 30 * time.Millisecond
)

// ImageHandler serves JPEG snapshots. Every failure past the camera lookup
// answers with the error image so <img> tags never break.
type ImageHandler struct {
	log        *zap.Logger
	svc        Capturer
	errorImage string
}

func NewImageHandler(log *zap.Logger, svc Capturer, errorImage string) *ImageHandler {
	return &ImageHandler{
		log:        log.Named("image"),
		svc:        svc,
		errorImage: errorImage,
	}
}

// Image handles GET /image?key&cam.
func (h *ImageHandler) Image(c *gin.Context) {
	camID := c.Query("cam")

	path, err := h.svc.Run(c.Request.Context(), camID)
	if errors.Is(err, camera.ErrNotFound) {
		c.Status(http.StatusNotFound)
		return
	}
	if err != nil {
		mw.Logger(c, h.log).Warn("capture failed", zap.String("cam", camID), zap.Error(err))
		c.Error(err)
		h.ErrorImage(c)
		return
	}

	data, err := readWithRetry(path, imageReadAttempts, imageReadDelay)
	if err != nil {
		mw.Logger(c, h.log).Warn("snapshot unreadable", zap.String("cam", camID), zap.Error(err))
		c.Error(err)
		h.ErrorImage(c)
		return
	}

	c.Header("Cache-Control", CacheControl(h.svc.CacheExpire()))
	c.Data(http.StatusOK, ContentType(path), data)
}

// ErrorImage writes the fallback image with status 200.
func (h *ImageHandler) ErrorImage(c *gin.Context) {
	data, err := os.ReadFile(h.errorImage)
	if err != nil {
		c.Error(fmt.Errorf("read error image: %w", err))
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Header("Cache-Control", CacheControl(0))
	c.Data(http.StatusOK, ContentType(h.errorImage), data)
}

// readWithRetry tolerates a snapshot being replaced while we open it.
func readWithRetry(path string, attempts int, delay time.Duration) ([]byte, error) {
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			time.Sleep(delay)
		}
		var data []byte
		if data, err = os.ReadFile(path); err == nil {
			return data, nil
		}
	}
	return nil, fmt.Errorf("read snapshot after %d attempts: %w", attempts, err)
}
