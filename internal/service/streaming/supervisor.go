package streaming

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edirooss/rtsplive-server/internal/domain/camera"
	"github.com/edirooss/rtsplive-server/internal/infrastructure/processmgr"
	"github.com/edirooss/rtsplive-server/internal/platform/metrics"
	"go.uber.org/zap"
)

// StatusSink receives a snapshot of every worker after each tick. Publishing
// runs beside the reconciliation pass and is bounded by the tick interval.
type StatusSink interface {
	PublishStatuses(ctx context.Context, statuses []WorkerStatus) error
}

type SupervisorOptions struct {
	Worker WorkerOptions
	// IdleTimeout turns a stream off after this long without a canary.
	IdleTimeout time.Duration
	// Interval between reconciliation ticks.
	Interval time.Duration
	// CloseTimeout bounds how long Close waits for each transcoder.
	CloseTimeout time.Duration
}

func (o *SupervisorOptions) setDefaults() {
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 60 * time.Second
	}
	if o.Interval <= 0 {
		o.Interval = 5 * time.Second
	}
	if o.CloseTimeout <= 0 {
		o.CloseTimeout = 5 * time.Second
	}
	if o.Worker.TargetChunks <= 0 {
		o.Worker.TargetChunks = 3
	}
}

// Supervisor owns one Worker per configured camera for the server's
// lifetime and reconciles them on a fixed interval.
type Supervisor struct {
	log     *zap.Logger
	met     *metrics.Metrics
	opts    SupervisorOptions
	workers map[string]*Worker // immutable after construction
	order   []*Worker
	now     func() time.Time

	sinkMu     sync.Mutex
	sink       StatusSink
	publishing atomic.Bool
	pub        sync.WaitGroup
}

func NewSupervisor(log *zap.Logger, cams []camera.Camera, launcher processmgr.Launcher, met *metrics.Metrics, opts SupervisorOptions) *Supervisor {
	opts.setDefaults()
	log = log.Named("streaming")

	s := &Supervisor{
		log:     log,
		met:     met,
		opts:    opts,
		workers: make(map[string]*Worker, len(cams)),
		order:   make([]*Worker, 0, len(cams)),
		now:     time.Now,
	}
	for _, cam := range cams {
		w := NewWorker(log, cam, launcher, met, opts.Worker)
		s.workers[cam.ID] = w
		s.order = append(s.order, w)
	}
	return s
}

// SetStatusSink installs a sink that receives worker statuses after each tick.
func (s *Supervisor) SetStatusSink(sink StatusSink) {
	s.sinkMu.Lock()
	s.sink = sink
	s.sinkMu.Unlock()
}

// Run turns the camera's stream on if needed and returns its playlist path.
// The path may not exist yet: launching happens on the next tick.
func (s *Supervisor) Run(camID string) (string, error) {
	w, ok := s.workers[camID]
	if !ok {
		return "", camera.ErrNotFound
	}
	if !w.State().DesiredOn() {
		w.Touch(s.now())
		w.Start()
	}
	return w.Playlist(), nil
}

// Canary records viewer activity for camID, turning the stream on if it
// was off. Unknown ids are logged only.
func (s *Supervisor) Canary(camID string) {
	w, ok := s.workers[camID]
	if !ok {
		s.log.Warn("canary for unknown camera", zap.String("cam", camID))
		return
	}
	w.Touch(s.now())
	if !w.State().DesiredOn() {
		w.Start()
	}
}

// Worker returns the worker for camID.
func (s *Supervisor) Worker(camID string) (*Worker, bool) {
	w, ok := s.workers[camID]
	return w, ok
}

// Tick performs one reconciliation pass:
//
//  1. turn off desired-on workers without a recent canary
//  2. converge every worker's subprocess to its desired state
//
// A failing or panicking worker is logged and skipped; the pass continues.
func (s *Supervisor) Tick(ctx context.Context) {
	now := s.now()

	for _, w := range s.order {
		s.guard(w, "idle check", func() error {
			if w.StopIfIdle(now, s.opts.IdleTimeout) {
				s.met.IncStreamIdleStop()
				s.log.Info("no canary; stream stopped", zap.String("cam", w.cam.ID), zap.Duration("idle_timeout", s.opts.IdleTimeout))
			}
			return nil
		})
	}

	for _, w := range s.order {
		s.guard(w, "reconcile", w.Reconcile)
	}

	statuses := s.Statuses()
	running := 0
	for _, st := range statuses {
		if st.State == Running.String() {
			running++
		}
	}
	s.met.SetStreamsRunning(running)

	s.sinkMu.Lock()
	sink := s.sink
	s.sinkMu.Unlock()
	if sink == nil {
		return
	}
	if !s.publishing.CompareAndSwap(false, true) {
		s.log.Debug("previous status publish still running; skipped")
		return
	}
	s.pub.Add(1)
	go s.publish(ctx, sink, statuses)
}

func (s *Supervisor) publish(ctx context.Context, sink StatusSink, statuses []WorkerStatus) {
	defer s.pub.Done()
	defer s.publishing.Store(false)

	ctx, cancel := context.WithTimeout(ctx, s.opts.Interval)
	defer cancel()
	if err := sink.PublishStatuses(ctx, statuses); err != nil {
		s.log.Warn("status publish failed", zap.Error(err))
	}
}

func (s *Supervisor) guard(w *Worker, step string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("worker panicked", zap.String("cam", w.cam.ID), zap.String("step", step), zap.Any("panic", r))
		}
	}()
	if err := fn(); err != nil {
		s.log.Error("worker step failed", zap.String("cam", w.cam.ID), zap.String("step", step), zap.Error(err))
	}
}

// Loop ticks every Interval until ctx is cancelled.
func (s *Supervisor) Loop(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	s.log.Info("reconciliation loop started",
		zap.Int("workers", len(s.order)),
		zap.Duration("interval", s.opts.Interval),
		zap.Duration("idle_timeout", s.opts.IdleTimeout))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Close stops every worker and waits, bounded, for their transcoders.
func (s *Supervisor) Close() {
	var wg sync.WaitGroup
	for _, w := range s.order {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.Close(s.opts.CloseTimeout)
		}(w)
	}
	wg.Wait()
	s.pub.Wait()
	s.log.Info("all transcoders stopped")
}

// Statuses returns a snapshot of every worker in configuration order.
func (s *Supervisor) Statuses() []WorkerStatus {
	out := make([]WorkerStatus, 0, len(s.order))
	for _, w := range s.order {
		out = append(out, w.Status())
	}
	return out
}
