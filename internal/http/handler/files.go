package handler

import (
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/edirooss/rtsplive-server/internal/domain/camera"
	"github.com/gin-gonic/gin"
)

// CameraLookup is implemented by *camera.Set.
type CameraLookup interface {
	Find(id string) (camera.Camera, bool)
}

// ContentType maps a file name to the content type served for it.
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".m3u8":
		return "application/x-mpegURL"
	case ".ts":
		return "video/MP2T"
	case ".htm", ".html":
		return "text/html; charset=utf-8"
	case ".js":
		return "application/javascript"
	case ".css":
		return "text/css"
	case ".ico":
		return "image/x-icon"
	case ".jpg", ".jpeg", ".jpe":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}

// CacheControl renders a Cache-Control value; non-positive ages disable caching.
func CacheControl(maxAge time.Duration) string {
	secs := int(maxAge / time.Second)
	if secs <= 0 {
		return "no-cache"
	}
	return "max-age=" + strconv.Itoa(secs)
}

// serveFile writes path with our content type and cache policy. Range and
// conditional requests are honored. Missing files return fs.ErrNotExist
// before anything is written.
func serveFile(c *gin.Context, path string, maxAge time.Duration) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return err
	}
	if st.IsDir() {
		return fs.ErrNotExist
	}

	c.Header("Content-Type", ContentType(path))
	c.Header("Cache-Control", CacheControl(maxAge))
	http.ServeContent(c.Writer, c.Request, st.Name(), st.ModTime(), f)
	return nil
}
