package handler

import (
	"errors"
	"io/fs"
	"net/http"
	"path/filepath"
	"time"

	mw "github.com/edirooss/rtsplive-server/internal/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AssetExpire is how long browsers may cache static assets.
const AssetExpire = 30 * 24 * time.Hour

// publicAssets may be fetched without the key.
var publicAssets = map[string]bool{
	"favicon.ico":     true,
	"background.html": true,
}

type AssetsHandler struct {
	log *zap.Logger
	dir string
	key []byte
}

func NewAssetsHandler(log *zap.Logger, dir, key string) *AssetsHandler {
	return &AssetsHandler{
		log: log.Named("assets"),
		dir: dir,
		key: []byte(key),
	}
}

// Asset handles GET /assets/:file.
func (h *AssetsHandler) Asset(c *gin.Context) {
	h.serve(c, filepath.Base(c.Param("file")))
}

// Favicon handles GET /favicon.ico.
func (h *AssetsHandler) Favicon(c *gin.Context) {
	h.serve(c, "favicon.ico")
}

// Background handles GET /background.html, the player's redirect target
// when its page is hidden.
func (h *AssetsHandler) Background(c *gin.Context) {
	h.serve(c, "background.html")
}

func (h *AssetsHandler) serve(c *gin.Context, name string) {
	if !publicAssets[name] && !mw.KeyValid(c, h.key) {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	err := serveFile(c, filepath.Join(h.dir, name), AssetExpire)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		c.Status(http.StatusNotFound)
	default:
		c.Error(err)
		c.Status(http.StatusInternalServerError)
	}
}
