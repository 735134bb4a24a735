package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edirooss/rtsplive-server/internal/domain/camera"
	"github.com/edirooss/rtsplive-server/internal/infrastructure/processmgr"
	"github.com/edirooss/rtsplive-server/internal/platform/metrics"
	"github.com/edirooss/rtsplive-server/pkg/ffmpegcmd"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrTimeout is returned when the transcoder exceeded the capture cap
	// (or no capture slot freed up in time) and was killed.
	ErrTimeout = errors.New("capture timeout exceeded")
	// ErrNoOutput is returned when the transcoder exited without an image.
	ErrNoOutput = errors.New("missing output image file")
)

// CameraLookup resolves camera ids. *camera.Set satisfies it.
type CameraLookup interface {
	Find(id string) (camera.Camera, bool)
}

type Options struct {
	// Dir holds <camID>.jpg snapshots.
	Dir       string
	FFmpegBin string
	// Timeout is the hard wall-clock cap for one capture, slot wait included.
	Timeout time.Duration
	// CacheExpire is how long a snapshot is served before recapturing.
	// Zero disables the cache.
	CacheExpire time.Duration
	RTSPTimeout time.Duration
	JPEGQuality int
	// MaxConcurrent caps capture subprocesses across all cameras.
	MaxConcurrent int64
}

func (o *Options) setDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.RTSPTimeout <= 0 {
		o.RTSPTimeout = 5 * time.Second
	}
	if o.JPEGQuality <= 0 {
		o.JPEGQuality = 5
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 4
	}
}

// job is one in-flight capture. err is written before done is closed and
// read only after, so it needs no lock.
type job struct {
	camID   string
	done    chan struct{}
	err     error
	waiters atomic.Int32
}

// Manager produces one fresh JPEG per camera on demand.
//
// Invariants:
//   - at most one job (and so one subprocess) per camera id at a time
//   - the cache check, job registration and publishing a finished
//     snapshot all happen under mu; launching never does
type Manager struct {
	log      *zap.Logger
	cams     CameraLookup
	launcher processmgr.Launcher
	met      *metrics.Metrics
	opts     Options
	slots    *semaphore.Weighted

	mu   sync.Mutex
	jobs map[string]*job

	now func() time.Time
}

func NewManager(log *zap.Logger, cams CameraLookup, launcher processmgr.Launcher, met *metrics.Metrics, opts Options) *Manager {
	opts.setDefaults()
	return &Manager{
		log:      log.Named("capture"),
		cams:     cams,
		launcher: launcher,
		met:      met,
		opts:     opts,
		slots:    semaphore.NewWeighted(opts.MaxConcurrent),
		jobs:     make(map[string]*job),
		now:      time.Now,
	}
}

// Path returns where the snapshot for camID is cached.
func (m *Manager) Path(camID string) string {
	return filepath.Join(m.opts.Dir, camID+".jpg")
}

func (m *Manager) partialPath(camID string) string {
	return filepath.Join(m.opts.Dir, camID+".partial.jpg")
}

// CacheExpire is the window a returned snapshot stays valid for.
func (m *Manager) CacheExpire() time.Duration { return m.opts.CacheExpire }

// Run returns the path of a snapshot for camID no older than the cache
// window, capturing a new one if needed. Concurrent callers for the same
// camera share a single capture and observe the same result. The wait is
// bounded by the capture timeout and by ctx.
func (m *Manager) Run(ctx context.Context, camID string) (string, error) {
	cam, ok := m.cams.Find(camID)
	if !ok {
		return "", camera.ErrNotFound
	}
	path := m.Path(camID)

	m.mu.Lock()
	if m.freshLocked(path) {
		m.mu.Unlock()
		m.met.IncCaptureCacheHit()
		return path, nil
	}
	j, inflight := m.jobs[camID]
	if !inflight {
		j = &job{camID: camID, done: make(chan struct{})}
		m.jobs[camID] = j
		go m.execute(j, cam)
	}
	j.waiters.Add(1)
	m.mu.Unlock()
	defer j.waiters.Add(-1)

	if inflight {
		m.log.Debug("attached to in-flight capture", zap.String("cam", camID))
	}

	select {
	case <-j.done:
		if j.err != nil {
			return "", j.err
		}
		return path, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// freshLocked reports whether the cached snapshot at path can be served.
// A stale snapshot stays on disk until the job that replaces it finishes,
// so a caller handed the previous path can still read it.
func (m *Manager) freshLocked(path string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	return m.opts.CacheExpire > 0 && m.now().Sub(fi.ModTime()) <= m.opts.CacheExpire
}

// execute runs j to completion, publishes the snapshot on success (or
// drops the stale one on failure) and retires the job. Waiters are released only after the registry entry is
// gone and the file is in place.
func (m *Manager) execute(j *job, cam camera.Camera) {
	start := m.now()
	err := m.capture(cam)

	m.mu.Lock()
	if err == nil {
		if rerr := os.Rename(m.partialPath(cam.ID), m.Path(cam.ID)); rerr != nil {
			err = fmt.Errorf("publish snapshot: %w", rerr)
		}
	}
	if err != nil {
		// The stale snapshot this job was meant to replace.
		if rerr := os.Remove(m.Path(cam.ID)); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			m.log.Warn("failed to remove stale snapshot", zap.String("cam", cam.ID), zap.Error(rerr))
		}
	}
	delete(m.jobs, j.camID)
	j.err = err
	m.mu.Unlock()
	close(j.done)

	took := m.now().Sub(start)
	switch {
	case err == nil:
		m.met.ObserveCapture("ok", took)
		m.log.Debug("snapshot captured", zap.String("cam", cam.ID), zap.Duration("took", took))
	case errors.Is(err, ErrTimeout):
		m.met.ObserveCapture("timeout", took)
		m.log.Warn("snapshot capture timed out", zap.String("cam", cam.ID), zap.Error(err))
	default:
		m.met.ObserveCapture("error", took)
		m.log.Warn("snapshot capture failed", zap.String("cam", cam.ID), zap.Error(err))
	}
}

// capture runs the transcoder for one frame into the partial file.
func (m *Manager) capture(cam camera.Camera) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.Timeout)
	defer cancel()

	if err := m.slots.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: no capture slot within %v", ErrTimeout, m.opts.Timeout)
	}
	defer m.slots.Release(1)

	if err := os.MkdirAll(m.opts.Dir, 0o755); err != nil {
		return fmt.Errorf("create capture dir: %w", err)
	}

	partial := m.partialPath(cam.ID)
	_ = os.Remove(partial)

	argv := ffmpegcmd.Snapshot(m.opts.FFmpegBin, cam, ffmpegcmd.SnapshotOptions{
		Output:      partial,
		RTSPTimeout: m.opts.RTSPTimeout,
		JPEGQuality: m.opts.JPEGQuality,
	})

	m.log.Debug("launching capture", zap.String("cam", cam.ID), zap.String("cmd", ffmpegcmd.Redacted(argv)))
	h, err := m.launcher.Launch("capture:"+cam.ID, argv)
	if err != nil {
		return fmt.Errorf("launch transcoder: %w", err)
	}

	select {
	case <-h.Done():
	case <-ctx.Done():
		h.Kill()
		select {
		case <-h.Done():
		case <-time.After(2 * time.Second):
			m.log.Error("transcoder did not exit after SIGKILL", zap.String("cam", cam.ID), zap.Int("pid", h.PID()))
		}
		_ = os.Remove(partial)
		return fmt.Errorf("%w: transcoder killed after %v", ErrTimeout, m.opts.Timeout)
	}

	fi, err := os.Stat(partial)
	if err != nil || fi.Size() == 0 {
		_ = os.Remove(partial)
		return fmt.Errorf("%w: transcoder pid %d %s without writing %s", ErrNoOutput, h.PID(), exitReason(h.ExitErr()), filepath.Base(partial))
	}
	return nil
}

func exitReason(err error) string {
	if err == nil {
		return "exited cleanly"
	}
	return "exited with " + err.Error()
}

// waiters reports how many callers are blocked on camID's in-flight job.
func (m *Manager) waiters(camID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[camID]; ok {
		return int(j.waiters.Load())
	}
	return 0
}
