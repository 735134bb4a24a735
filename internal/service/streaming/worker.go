package streaming

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/edirooss/rtsplive-server/internal/domain/camera"
	"github.com/edirooss/rtsplive-server/internal/infrastructure/processmgr"
	"github.com/edirooss/rtsplive-server/internal/platform/metrics"
	"github.com/edirooss/rtsplive-server/pkg/ffmpegcmd"
	"go.uber.org/zap"
)

// State is the tagged lifecycle state of a Worker.
type State int

const (
	Idle     State = iota // desired-off, no subprocess
	Starting              // desired-on, launch pending
	Running               // desired-on, subprocess alive
	Stopping              // desired-off, subprocess still alive
	Dead                  // desired-on, subprocess exited unexpectedly
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Dead:
		return "dead"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DesiredOn reports whether the worker should converge to a live transcoder.
func (s State) DesiredOn() bool { return s == Starting || s == Running || s == Dead }

type WorkerOptions struct {
	// Dir is the parent of every per-camera output directory.
	Dir               string
	FFmpegBin         string
	Key               string
	RTSPTimeout       time.Duration
	MaxDuration       time.Duration
	TargetChunks      int
	CleanupBeforePlay bool
}

// Worker owns the HLS transcoder of one camera. Every transition goes
// through mu, so at most one subprocess exists per worker.
type Worker struct {
	log      *zap.Logger
	cam      camera.Camera
	launcher processmgr.Launcher
	met      *metrics.Metrics
	opts     WorkerOptions
	dir      string
	playlist string

	mu         sync.Mutex
	state      State
	proc       processmgr.Handle
	closing    bool // Close was issued to proc
	launching  bool // a launch is running outside mu
	lastCanary time.Time
	launches   int
}

func NewWorker(log *zap.Logger, cam camera.Camera, launcher processmgr.Launcher, met *metrics.Metrics, opts WorkerOptions) *Worker {
	dir := filepath.Join(opts.Dir, cam.ID)
	return &Worker{
		log:      log.With(zap.String("cam", cam.ID)),
		cam:      cam,
		launcher: launcher,
		met:      met,
		opts:     opts,
		dir:      dir,
		playlist: filepath.Join(dir, ffmpegcmd.PlaylistName),
	}
}

func (w *Worker) Camera() camera.Camera { return w.cam }

// Playlist is the path the transcoder writes; it may not exist yet.
func (w *Worker) Playlist() string { return w.playlist }

func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.refreshLocked()
	return w.state
}

// Start marks the worker desired-on. The launch itself happens on the next
// Reconcile. Reports whether the state changed.
func (w *Worker) Start() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case Idle:
		w.state = Starting
	case Stopping:
		if w.closing {
			// Relaunch once the old process is gone.
			w.state = Starting
		} else {
			// The old process has not been told to exit yet; keep it.
			w.state = Running
		}
	default:
		w.log.Debug("start ignored; already on", zap.Stringer("state", w.state))
		return false
	}
	w.log.Info("stream turned on")
	return true
}

// Stop marks the worker desired-off. A live subprocess is terminated on the
// next Reconcile. Reports whether the state changed.
func (w *Worker) Stop() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case Starting:
		if w.proc != nil {
			// Previous run is still exiting after an earlier Close.
			w.state = Stopping
		} else {
			w.state = Idle
		}
	case Dead:
		w.state = Idle
		w.proc = nil
	case Running:
		w.state = Stopping
	default:
		w.log.Debug("stop ignored; already off", zap.Stringer("state", w.state))
		return false
	}
	w.log.Info("stream turned off")
	return true
}

// Touch records viewer activity at now.
func (w *Worker) Touch(now time.Time) {
	w.mu.Lock()
	w.lastCanary = now
	w.mu.Unlock()
}

// StopIfIdle turns the worker off when it is desired-on and has seen no
// viewer activity for longer than threshold.
func (w *Worker) StopIfIdle(now time.Time, threshold time.Duration) bool {
	w.mu.Lock()
	idle := w.state.DesiredOn() && now.Sub(w.lastCanary) > threshold
	w.mu.Unlock()
	if !idle {
		return false
	}
	return w.Stop()
}

// refreshLocked folds the subprocess liveness into the tagged state.
func (w *Worker) refreshLocked() {
	if w.proc == nil {
		return
	}

	switch w.proc.Liveness() {
	case processmgr.Exited:
		switch w.state {
		case Running:
			w.log.Warn("transcoder exited unexpectedly", zap.Int("pid", w.proc.PID()))
			w.met.IncStreamCrash()
			w.state = Dead
		case Stopping:
			w.log.Info("transcoder stopped", zap.Int("pid", w.proc.PID()))
			w.state = Idle
			w.proc = nil
		case Starting:
			w.proc = nil
		}
	case processmgr.Unknown:
		w.log.Warn("transcoder liveness unknown", zap.Int("pid", w.proc.PID()), zap.Stringer("state", w.state))
	}
}

// Reconcile converges the subprocess to the desired state:
// desired-on without a live process launches one; desired-off with a live
// process terminates it. A failed launch leaves the state as is so the
// next tick retries.
//
// Directory preparation and the launch run without holding mu, so
// playback calls never wait on them.
func (w *Worker) Reconcile() error {
	w.mu.Lock()
	w.refreshLocked()

	switch w.state {
	case Starting, Dead:
		if w.launching {
			break
		}
		if w.proc != nil && w.proc.Liveness() == processmgr.Alive {
			w.log.Debug("previous transcoder still exiting; deferring launch", zap.Int("pid", w.proc.PID()))
			break
		}
		w.launching = true
		w.mu.Unlock()
		return w.launch()
	case Stopping:
		if !w.closing {
			w.proc.Close()
			w.closing = true
		}
	}
	w.mu.Unlock()
	return nil
}

func (w *Worker) launch() (err error) {
	var h processmgr.Handle
	defer func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.launching = false
		if h != nil {
			w.adoptLocked(h)
		}
	}()

	h, err = w.spawn()
	return err
}

// adoptLocked installs a freshly launched process. If the worker was turned
// off meanwhile, the process is stopped right away.
func (w *Worker) adoptLocked(h processmgr.Handle) {
	w.proc = h
	w.closing = false
	w.launches++
	w.met.IncStreamStart()

	if !w.state.DesiredOn() {
		w.log.Info("stream turned off during launch; stopping transcoder", zap.Int("pid", h.PID()))
		w.state = Stopping
		h.Close()
		w.closing = true
		return
	}
	w.state = Running
	w.log.Info("transcoder launched", zap.Int("pid", h.PID()), zap.Int("launches", w.launches))
}

func (w *Worker) spawn() (processmgr.Handle, error) {
	if err := prepareDir(w.dir, w.playlist, w.opts.TargetChunks, w.opts.CleanupBeforePlay); err != nil {
		return nil, fmt.Errorf("prepare %s: %w", w.dir, err)
	}

	argv := ffmpegcmd.HLS(w.opts.FFmpegBin, w.cam, ffmpegcmd.HLSOptions{
		Dir:          w.dir,
		Key:          w.opts.Key,
		RTSPTimeout:  w.opts.RTSPTimeout,
		MaxDuration:  w.opts.MaxDuration,
		TargetChunks: w.opts.TargetChunks,
	})

	w.log.Debug("launching transcoder", zap.String("cmd", ffmpegcmd.Redacted(argv)))
	h, err := w.launcher.Launch("stream:"+w.cam.ID, argv)
	if err != nil {
		return nil, fmt.Errorf("launch transcoder: %w", err)
	}
	return h, nil
}

// Close stops the worker and waits up to timeout for the subprocess to exit.
func (w *Worker) Close(timeout time.Duration) {
	w.mu.Lock()
	proc := w.proc
	w.proc = nil
	w.state = Idle
	w.mu.Unlock()

	if proc == nil {
		return
	}
	proc.Close()
	select {
	case <-proc.Done():
	case <-time.After(timeout):
		proc.Kill()
		w.log.Warn("transcoder did not exit in time; killed", zap.Int("pid", proc.PID()))
	}
}

// WorkerStatus is a point-in-time view of a worker.
type WorkerStatus struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	State      string    `json:"state"`
	PID        int       `json:"pid,omitempty"`
	Launches   int       `json:"launches"`
	LastCanary time.Time `json:"last_canary"`
}

func (w *Worker) Status() WorkerStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.refreshLocked()

	st := WorkerStatus{
		ID:         w.cam.ID,
		Name:       w.cam.Name,
		State:      w.state.String(),
		Launches:   w.launches,
		LastCanary: w.lastCanary,
	}
	if w.proc != nil && w.proc.Liveness() == processmgr.Alive {
		st.PID = w.proc.PID()
	}
	return st
}
