package service

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/edirooss/rtsplive-server/internal/service/streaming"
	"go.uber.org/zap"
)

type countingSource struct {
	calls atomic.Int32
	delay time.Duration
}

func (c *countingSource) Statuses() []streaming.WorkerStatus {
	c.calls.Add(1)
	time.Sleep(c.delay)
	return []streaming.WorkerStatus{{ID: "gate", State: "running"}}
}

func TestStatusServiceCaches(t *testing.T) {
	src := &countingSource{}
	svc := NewStatusService(zap.NewNop(), src, StatusOptions{TTL: time.Minute})

	first := svc.Get()
	if first.CacheHit || len(first.Data) != 1 {
		t.Fatalf("first Get = %+v", first)
	}
	second := svc.Get()
	if !second.CacheHit || !second.GeneratedAt.Equal(first.GeneratedAt) {
		t.Errorf("second Get not served from cache: %+v", second)
	}
	if src.calls.Load() != 1 {
		t.Errorf("source calls = %d, want 1", src.calls.Load())
	}

	// Callers own their copy.
	second.Data[0].State = "mutated"
	if svc.Get().Data[0].State != "running" {
		t.Error("cached snapshot was mutated through a result")
	}
}

func TestStatusServiceExpires(t *testing.T) {
	src := &countingSource{}
	svc := NewStatusService(zap.NewNop(), src, StatusOptions{TTL: time.Second})
	now := time.Now()
	svc.now = func() time.Time { return now }

	svc.Get()
	now = now.Add(2 * time.Second)
	if res := svc.Get(); res.CacheHit {
		t.Error("expired snapshot served")
	}
	if src.calls.Load() != 2 {
		t.Errorf("source calls = %d, want 2", src.calls.Load())
	}
}

func TestStatusServiceCoalescesRefreshes(t *testing.T) {
	src := &countingSource{delay: 50 * time.Millisecond}
	svc := NewStatusService(zap.NewNop(), src, StatusOptions{TTL: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Get()
		}()
	}
	wg.Wait()

	if n := src.calls.Load(); n != 1 {
		t.Errorf("source calls = %d, want 1", n)
	}
}
