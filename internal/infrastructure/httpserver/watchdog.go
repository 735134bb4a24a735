package httpserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/edirooss/rtsplive-server/internal/platform/metrics"
	"go.uber.org/zap"
)

// ProbeHeader tags the watchdog's self-probe so the access log can skip it.
const ProbeHeader = "X-Watchdog-Probe"

// ServerFactory builds a fresh *http.Server. A server cannot be reused after
// Shutdown, so every (re)start asks for a new one.
type ServerFactory func() *http.Server

type Options struct {
	// Addr is the listen address, e.g. ":8000".
	Addr string
	// TLSConfig, when set, wraps the listener in TLS.
	TLSConfig *tls.Config
	// Interval between liveness probes; default 10s.
	Interval time.Duration
	// FailThreshold consecutive probe failures trigger a restart; default 3.
	FailThreshold int
	// ProbeTimeout bounds a single probe; default 10s.
	ProbeTimeout time.Duration
	// ProbePath is requested on the local listener; default /api/ping.
	ProbePath string
	// RestartGrace is the pause between stop and start; default 1s.
	RestartGrace time.Duration
	// StopTimeout bounds graceful shutdown before connections are dropped; default 5s.
	StopTimeout time.Duration
}

func (o *Options) setDefaults() {
	if o.Interval <= 0 {
		o.Interval = 10 * time.Second
	}
	if o.FailThreshold <= 0 {
		o.FailThreshold = 3
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = 10 * time.Second
	}
	if o.ProbePath == "" {
		o.ProbePath = "/api/ping"
	}
	if o.RestartGrace <= 0 {
		o.RestartGrace = time.Second
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = 5 * time.Second
	}
}

// Watchdog owns the HTTP listener and restarts it in place when it stops
// answering its own liveness probe.
//
// Start, Stop, probing and restarting are serialized by mu, so an external
// Stop never races a restart.
type Watchdog struct {
	log       *zap.Logger
	met       *metrics.Metrics
	opts      Options
	newServer ServerFactory
	client    *http.Client
	probe     func(ctx context.Context, addr net.Addr) error

	mu          sync.Mutex
	srv         *http.Server
	addr        net.Addr
	running     bool // a server is serving
	wantRunning bool // Start was called and Stop was not
	failures    int
}

func New(log *zap.Logger, met *metrics.Metrics, newServer ServerFactory, opts Options) *Watchdog {
	opts.setDefaults()
	w := &Watchdog{
		log:       log.Named("watchdog"),
		met:       met,
		opts:      opts,
		newServer: newServer,
		client: &http.Client{
			Timeout: opts.ProbeTimeout,
			Transport: &http.Transport{
				// The probe targets our own listener; its certificate is
				// usually issued for the public hostname, not 127.0.0.1.
				TLSClientConfig:   &tls.Config{InsecureSkipVerify: true},
				DisableKeepAlives: true,
			},
		},
	}
	w.probe = w.httpProbe
	return w
}

// Start binds the listener and begins serving. Bind errors are returned.
func (w *Watchdog) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.wantRunning = true
	return w.startLocked()
}

func (w *Watchdog) startLocked() error {
	if w.running {
		return nil
	}

	ln, err := net.Listen("tcp", w.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", w.opts.Addr, err)
	}
	if w.opts.TLSConfig != nil {
		ln = tls.NewListener(ln, w.opts.TLSConfig)
	}

	srv := w.newServer()
	w.srv = srv
	w.addr = ln.Addr()
	w.running = true
	w.failures = 0

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			w.log.Error("server stopped unexpectedly", zap.Error(err))
		}
	}()

	w.log.Info("HTTP server listening", zap.Stringer("addr", w.addr), zap.Bool("tls", w.opts.TLSConfig != nil))
	return nil
}

// Stop shuts the listener down and disables automatic restarts.
func (w *Watchdog) Stop(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.wantRunning = false
	return w.stopLocked(ctx)
}

func (w *Watchdog) stopLocked(ctx context.Context) error {
	if !w.running {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, w.opts.StopTimeout)
	defer cancel()

	err := w.srv.Shutdown(ctx)
	if err != nil {
		w.log.Warn("graceful shutdown incomplete; closing connections", zap.Error(err))
		_ = w.srv.Close()
	}

	w.srv = nil
	w.running = false
	w.log.Info("HTTP server stopped")
	return err
}

// Addr returns the bound address, or nil when not running.
func (w *Watchdog) Addr() net.Addr {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	return w.addr
}

// Running reports whether a server is currently serving.
func (w *Watchdog) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Tick runs one watchdog step: retry a failed restart, or probe the live
// listener and restart it after FailThreshold consecutive failures.
func (w *Watchdog) Tick(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.wantRunning {
		return
	}

	if !w.running {
		if err := w.startLocked(); err != nil {
			w.log.Error("listener restart failed; retrying next interval", zap.Error(err))
		}
		return
	}

	pctx, cancel := context.WithTimeout(ctx, w.opts.ProbeTimeout)
	err := w.probe(pctx, w.addr)
	cancel()

	if err == nil {
		if w.failures > 0 {
			w.log.Info("liveness probe recovered", zap.Int("failures", w.failures))
		}
		w.failures = 0
		return
	}

	w.failures++
	w.met.IncWatchdogProbeFailure()
	w.log.Warn("liveness probe failed",
		zap.Int("failures", w.failures),
		zap.Int("threshold", w.opts.FailThreshold),
		zap.Error(err))

	if w.failures >= w.opts.FailThreshold {
		w.restartLocked(ctx)
	}
}

func (w *Watchdog) restartLocked(ctx context.Context) {
	w.log.Warn("listener unresponsive; restarting", zap.Int("failures", w.failures))
	w.met.IncWatchdogRestart()

	if err := w.stopLocked(ctx); err != nil {
		w.log.Warn("stop during restart", zap.Error(err))
	}

	select {
	case <-time.After(w.opts.RestartGrace):
	case <-ctx.Done():
		return
	}

	if err := w.startLocked(); err != nil {
		w.log.Error("listener restart failed; retrying next interval", zap.Error(err))
		return
	}
	w.failures = 0
}

// Run ticks every Interval until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// httpProbe issues GET ProbePath against the local listener.
func (w *Watchdog) httpProbe(ctx context.Context, addr net.Addr) error {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return fmt.Errorf("unexpected listener address %T", addr)
	}
	scheme := "http"
	if w.opts.TLSConfig != nil {
		scheme = "https"
	}
	url := fmt.Sprintf("%s://127.0.0.1:%d%s", scheme, tcp.Port, w.opts.ProbePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set(ProbeHeader, "1")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("probe status %d", resp.StatusCode)
	}
	return nil
}
