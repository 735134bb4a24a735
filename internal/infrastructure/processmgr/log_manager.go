package processmgr

import "sync"

// LogManager keeps one output buffer per process owner name. Buffers outlive
// individual runs so the tail spans restarts.
type LogManager struct {
	mu   sync.RWMutex
	bufs map[string]*logBuffer
}

func NewLogManager() *LogManager {
	return &LogManager{bufs: make(map[string]*logBuffer)}
}

// Get returns the buffer for name, creating it on first use.
func (lm *LogManager) Get(name string) *logBuffer {
	lm.mu.RLock()
	buf, ok := lm.bufs[name]
	lm.mu.RUnlock()
	if ok {
		return buf
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()
	if buf, ok := lm.bufs[name]; ok {
		return buf
	}
	buf = new(logBuffer)
	lm.bufs[name] = buf
	return buf
}

// Tail returns the last n lines recorded for name, oldest first.
// Unknown names yield nil.
func (lm *LogManager) Tail(name string, n int) []string {
	lm.mu.RLock()
	buf, ok := lm.bufs[name]
	lm.mu.RUnlock()
	if !ok {
		return nil
	}
	return buf.Tail(n)
}
