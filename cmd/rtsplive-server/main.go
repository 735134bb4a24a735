package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/edirooss/rtsplive-server/internal/config"
	"github.com/edirooss/rtsplive-server/internal/domain/camera"
	"github.com/edirooss/rtsplive-server/internal/infrastructure/httpserver"
	"github.com/edirooss/rtsplive-server/internal/infrastructure/processmgr"
	"github.com/edirooss/rtsplive-server/internal/platform/metrics"
	"github.com/edirooss/rtsplive-server/internal/redis"
	"github.com/edirooss/rtsplive-server/internal/service"
	"github.com/edirooss/rtsplive-server/internal/service/capture"
	"github.com/edirooss/rtsplive-server/internal/service/streaming"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := parseFlags()

	// Read env
	isDev := os.Getenv("ENV") == "dev"
	if err := config.LoadDotEnv(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
	}

	// Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Create Zap logger
	log := buildLogger(cfg.LogLevel)
	defer log.Sync()
	log = log.Named("main")

	securityChecks(log, cfg)
	checkFFmpeg(log, cfg.FFmpegBin)

	for _, dir := range cfg.WorkDirs() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatal("cannot create working directory", zap.String("dir", dir), zap.Error(err))
		}
	}

	cams, err := camera.NewSet(cfg.Cameras)
	if err != nil {
		log.Fatal("invalid camera list", zap.Error(err))
	}
	log.Info("cameras loaded", zap.Int("count", cams.Len()))

	var met *metrics.Metrics
	if cfg.MetricsEnabled {
		met = metrics.New()
	}

	logmngr := processmgr.NewLogManager()
	launcher := processmgr.NewExecLauncher(log, logmngr, processmgr.ExecLauncherOptions{})

	capturemgr := capture.NewManager(log, cams, launcher, met, capture.Options{
		Dir:           cfg.CaptureDir(),
		FFmpegBin:     cfg.FFmpegBin,
		Timeout:       cfg.CaptureTimeout(),
		CacheExpire:   cfg.CaptureCacheExpire(),
		RTSPTimeout:   cfg.RTSPTimeout(),
		JPEGQuality:   cfg.CaptureJPEGQuality,
		MaxConcurrent: int64(cfg.CaptureMaxConcurrent),
	})

	supervisor := streaming.NewSupervisor(log, cams.All(), launcher, met, streaming.SupervisorOptions{
		Worker: streaming.WorkerOptions{
			Dir:               cfg.StreamDir(),
			FFmpegBin:         cfg.FFmpegBin,
			Key:               cfg.Key,
			RTSPTimeout:       cfg.RTSPTimeout(),
			MaxDuration:       cfg.HLSMaxDuration(),
			TargetChunks:      cfg.HLSTargetChunks,
			CleanupBeforePlay: cfg.HLSCleanupBeforePlay,
		},
		IdleTimeout: cfg.HLSNoCanary(),
		Interval:    cfg.HLSCheckInterval(),
	})

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(log, cfg.RedisAddr, 0)
		defer rdb.Close()
		statusRepo := redis.NewStatusRepository(log, rdb, 3*cfg.HLSCheckInterval())
		if err := rdb.Ping(context.Background()); err == nil {
			reportPreviousRun(log, statusRepo, cams)
		}
		supervisor.SetStatusSink(statusRepo)
	}

	statussvc := service.NewStatusService(log, supervisor, service.StatusOptions{})

	r := newRouter(log, isDev, cfg, routerDeps{
		cams:       cams,
		supervisor: supervisor,
		capture:    capturemgr,
		status:     statussvc,
		logs:       logmngr,
		met:        met,
	})

	var tlsConfig *tls.Config
	if cfg.HTTPSModeOn {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			log.Fatal("cannot load TLS certificate", zap.Error(err))
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	}

	newServer := func() *http.Server {
		return &http.Server{
			Handler:           r,
			ReadHeaderTimeout: 2 * time.Second,  // kills header-drip Slowloris
			ReadTimeout:       10 * time.Second, // full request read (incl. body)
			WriteTimeout:      30 * time.Second, // snapshots may wait for a capture
			IdleTimeout:       60 * time.Second, // keep-alive cap
			MaxHeaderBytes:    1 << 20,          // 1MB cap
			ErrorLog:          zap.NewStdLog(log.Named("http")),
		}
	}

	watchdog := httpserver.New(log, met, newServer, httpserver.Options{
		Addr:          cfg.Addr(),
		TLSConfig:     tlsConfig,
		Interval:      cfg.WatchdogInterval(),
		FailThreshold: cfg.WatchdogFailThreshold,
		ProbeTimeout:  cfg.WatchdogProbeTimeout(),
	})
	if err := watchdog.Start(); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
	log.Info("server started", zap.String("url", cfg.PublicURL()), zap.Int("cameras", len(cfg.Cameras)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return supervisor.Loop(gctx) })
	g.Go(func() error { return watchdog.Run(gctx) })

	if err := g.Wait(); err != nil {
		log.Error("background loop failed", zap.Error(err))
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := watchdog.Stop(shutdownCtx); err != nil {
		log.Warn("listener shutdown", zap.Error(err))
	}
	supervisor.Close()
	log.Info("server closed")
}

// parseFlags handles -v/--version and returns the config file path.
func parseFlags() string {
	v := flag.Bool("v", false, "print version and exit")
	flag.BoolVar(v, "version", false, "print version and exit")
	configPath := flag.String("config", "rtsplive-server.yaml", "path to the YAML config file")
	flag.Parse()

	if *v {
		fmt.Printf("rtsplive-server %s (commit %s, built %s)\n", config.Version, config.GitCommit, config.BuildDate)
		os.Exit(0)
	}
	return *configPath
}

// securityChecks warns about settings that are unsafe outside a lab.
func securityChecks(log *zap.Logger, cfg *config.Config) {
	if cfg.UsesDefaultKey() {
		log.Warn("the access key is still the shipped default; change `key` in the config")
	}
	if !cfg.HTTPSModeOn {
		log.Warn("HTTPS is off; the access key travels in clear text unless a TLS proxy fronts this server")
	}
	for _, id := range cfg.GeneratedIDs {
		log.Warn("camera has no id; generated one for this run", zap.String("cam", id))
	}
	abs, err := filepath.Abs(cfg.DataDir)
	if err == nil {
		log.Info("working directory", zap.String("data_dir", abs))
	}
}

// checkFFmpeg resolves the transcoder binary once so a typo shows up at
// startup instead of as a crash loop on the first viewer.
func checkFFmpeg(log *zap.Logger, bin string) {
	path, err := exec.LookPath(bin)
	if err != nil {
		log.Error("ffmpeg not found; streams and snapshots will fail", zap.String("ffmpeg_bin", bin), zap.Error(err))
		return
	}
	log.Info("ffmpeg found", zap.String("path", path))
}

// reportPreviousRun logs cameras a previous instance still advertised as
// live. Their status keys expire on their own.
func reportPreviousRun(log *zap.Logger, repo *redis.StatusRepository, cams *camera.Set) {
	ids := make([]string, 0, cams.Len())
	for _, c := range cams.All() {
		ids = append(ids, c.ID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	prev, err := repo.BulkStatus(ctx, ids)
	if err != nil {
		log.Warn("cannot read previous status", zap.Error(err))
		return
	}
	for id, st := range prev {
		if st.State == streaming.Running.String() {
			log.Info("camera was streaming in a previous run", zap.String("cam", id), zap.Int("pid", st.PID))
		}
	}
}

func buildLogger(level string) *zap.Logger {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	logConfig.DisableCaller = true

	lvl := zap.DebugLevel
	if level != "" {
		if err := lvl.Set(level); err != nil {
			fmt.Fprintf(os.Stderr, "unknown log_level %q, using debug\n", level)
			lvl = zap.DebugLevel
		}
	}
	logConfig.Level.SetLevel(lvl)
	return zap.Must(logConfig.Build())
}
