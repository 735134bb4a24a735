package main

import (
	"net/http"
	"path/filepath"
	"time"

	"github.com/edirooss/rtsplive-server/internal/config"
	"github.com/edirooss/rtsplive-server/internal/domain/camera"
	"github.com/edirooss/rtsplive-server/internal/http/handler"
	mw "github.com/edirooss/rtsplive-server/internal/http/middleware"
	"github.com/edirooss/rtsplive-server/internal/infrastructure/processmgr"
	"github.com/edirooss/rtsplive-server/internal/platform/metrics"
	"github.com/edirooss/rtsplive-server/internal/service"
	"github.com/edirooss/rtsplive-server/internal/service/capture"
	"github.com/edirooss/rtsplive-server/internal/service/streaming"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type routerDeps struct {
	cams       *camera.Set
	supervisor *streaming.Supervisor
	capture    *capture.Manager
	status     *service.StatusService
	logs       *processmgr.LogManager
	met        *metrics.Metrics
}

// imageQueueWait is how long /image waits for a free slot before answering
// with the error image.
const imageQueueWait = 2 * time.Second

func newRouter(log *zap.Logger, isDev bool, cfg *config.Config, d routerDeps) *gin.Engine {
	// Create Gin router
	if !isDev {
		gin.SetMode(gin.ReleaseMode)
	}
	gin.DefaultWriter = zap.NewStdLog(log.Named("gin")).Writer() // Configure Gin's logger to use Zap
	r := gin.New()

	// Apply Gin middlewares
	{
		r.Use(gin.Recovery()) // Recovery first (outermost)
		r.Use(mw.RequestID()) // Attach request ID for tracing; early in the chain so it's available everywhere

		if isDev { // Player pages embedded from local dev hosts
			r.Use(cors.New(cors.Config{
				AllowOrigins:  []string{"http://localhost:5173", "http://localhost:3000", "http://127.0.0.1:3000"},
				AllowMethods:  []string{"GET", "HEAD", "OPTIONS"},
				AllowHeaders:  []string{"X-Request-ID", "Range"},
				ExposeHeaders: []string{"X-Request-ID", "X-Total-Count", "X-Cache", "X-Summary-Generated-At"},
				MaxAge:        12 * time.Hour,
			}))
		} else {
			r.Use(secure.New(secure.Config{
				ContentTypeNosniff: true,
				BrowserXssFilter:   true,
				IsDevelopment:      false,
				SSLProxyHeaders: map[string]string{
					"X-Forwarded-Proto": "https",
				},
			}))
		}

		r.Use(mw.AccessLog(log.Named("http"), d.met)) // Observability (logger, metrics)
	}

	key := cfg.Key
	validCam := mw.RequireValidCameraID()

	// Register route handlers
	{
		// --- Public endpoints (no key) ---
		{
			r.GET("/api/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
			if d.met != nil {
				r.GET("/metrics", gin.WrapH(d.met.Handler()))
			}
		}

		// --- Assets (key required except for the public allow-list) ---
		{
			assets := handler.NewAssetsHandler(log, cfg.AssetsDir, key)
			r.GET("/assets/:file", assets.Asset)
			r.GET("/favicon.ico", assets.Favicon)
			r.GET("/background.html", assets.Background)
		}

		// --- Stream files (key checked per file kind) ---
		{
			stream := handler.NewStreamHandler(log, d.cams, d.supervisor, cfg.StreamDir(), cfg.AssetsDir, key)
			r.GET("/stream/:cam/:file", validCam, stream.File)
		}

		// --- Keyed endpoints ---
		{
			keyed := r.Group("", mw.RequireKey(key))

			player := handler.NewPlayerHandler(log, d.supervisor, handler.PlayerOptions{
				AssetsDir:     cfg.AssetsDir,
				Key:           key,
				RedirectURL:   cfg.RedirectURLIfBackground,
				AllowSeekBack: cfg.HLSAllowSeekBack,
			})
			keyed.GET("/player", validCam, player.Player)

			image := handler.NewImageHandler(log, d.capture, filepath.Join(cfg.AssetsDir, "error_image.jpg"))
			keyed.GET("/image", validCam,
				mw.LimitConcurrentRequests(4*cfg.CaptureMaxConcurrent, imageQueueWait, image.ErrorImage),
				image.Image)

			keyed.GET("/api/status", handler.Status(d.status))
			keyed.GET("/api/cameras/:cam/logs", validCam, handler.CameraLogs(d.cams, d.logs))
		}
	}

	return r
}
