package processmgr

import "sync"

// logCapacity bounds how many output lines are kept per owner.
const logCapacity = 500

// logBuffer is a thread-safe ring of the most recent output lines.
// Append is O(1); Tail copies at most logCapacity lines.
type logBuffer struct {
	mu    sync.RWMutex
	lines [logCapacity]string
	next  int // slot the next Append writes
	n     int // valid lines, saturates at logCapacity
}

// Append records one line, evicting the oldest when full.
func (b *logBuffer) Append(line string) {
	b.mu.Lock()
	b.lines[b.next] = line
	b.next = (b.next + 1) % logCapacity
	if b.n < logCapacity {
		b.n++
	}
	b.mu.Unlock()
}

// Tail returns up to n lines in chronological order (oldest first).
// n <= 0 or n > logCapacity returns everything held.
func (b *logBuffer) Tail(n int) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.n == 0 {
		return nil
	}
	if n <= 0 || n > b.n {
		n = b.n
	}

	out := make([]string, n)
	start := (b.next - n + logCapacity) % logCapacity
	for i := range out {
		out[i] = b.lines[(start+i)%logCapacity]
	}
	return out
}

func (b *logBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.n
}
