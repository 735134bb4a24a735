package service

import (
	"sync"
	"time"

	"github.com/edirooss/rtsplive-server/internal/service/streaming"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// StatusSource is implemented by *streaming.Supervisor.
type StatusSource interface {
	Statuses() []streaming.WorkerStatus
}

type StatusOptions struct {
	// TTL controls how long a snapshot is served; default 250ms.
	TTL time.Duration
}

func (o *StatusOptions) setDefaults() {
	if o.TTL <= 0 {
		o.TTL = 250 * time.Millisecond
	}
}

// StatusResult lets the handler set cache headers.
type StatusResult struct {
	Data        []streaming.WorkerStatus
	CacheHit    bool
	GeneratedAt time.Time
}

// StatusService serves worker statuses from a short-lived snapshot so that
// polling dashboards do not contend on every worker lock.
type StatusService struct {
	log *zap.Logger
	src StatusSource

	mu      sync.RWMutex
	cache   []streaming.WorkerStatus
	expires time.Time
	genAt   time.Time

	opts StatusOptions
	now  func() time.Time

	sg singleflight.Group
}

func NewStatusService(log *zap.Logger, src StatusSource, opts StatusOptions) *StatusService {
	opts.setDefaults()
	return &StatusService{
		log:  log.Named("status_service"),
		src:  src,
		opts: opts,
		now:  time.Now,
	}
}

// Get returns the cached snapshot or refreshes it when expired.
// Concurrent refreshes are coalesced.
func (s *StatusService) Get() StatusResult {
	if res, ok := s.cached(); ok {
		return res
	}

	v, _, _ := s.sg.Do("status-refresh", func() (any, error) {
		// Double-check freshness after we won the flight
		if res, ok := s.cached(); ok {
			return res, nil
		}

		start := s.now()
		data := s.src.Statuses()

		s.mu.Lock()
		s.cache = data
		s.expires = start.Add(s.opts.TTL)
		s.genAt = start
		s.mu.Unlock()

		return StatusResult{Data: cloneStatuses(data), GeneratedAt: start}, nil
	})
	return v.(StatusResult)
}

func (s *StatusService) cached() (StatusResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cache != nil && s.now().Before(s.expires) {
		return StatusResult{Data: cloneStatuses(s.cache), CacheHit: true, GeneratedAt: s.genAt}, true
	}
	return StatusResult{}, false
}

func cloneStatuses(in []streaming.WorkerStatus) []streaming.WorkerStatus {
	return append([]streaming.WorkerStatus(nil), in...)
}
