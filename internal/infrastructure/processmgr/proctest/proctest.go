// Package proctest provides an in-memory processmgr.Launcher for tests that
// need to count launches or script how a transcoder behaves without
// spawning real children.
package proctest

import (
	"sync"
	"sync/atomic"

	"github.com/edirooss/rtsplive-server/internal/infrastructure/processmgr"
)

// Launch records one call to Launcher.Launch.
type Launch struct {
	Name   string
	Argv   []string
	Handle *Handle
}

// Launcher is a fake processmgr.Launcher. The zero value is ready to use;
// launched processes stay alive until Exit, Close or Kill.
type Launcher struct {
	// Behavior, when set, runs in its own goroutine for every launch.
	// Typical uses: write the expected output file and call h.Exit().
	Behavior func(name string, argv []string, h *Handle)

	// Err, when set, makes every Launch fail.
	Err error

	// IgnoreClose makes launched processes survive Close, like a transcoder
	// still flushing after SIGTERM. They exit only on Exit or Kill.
	IgnoreClose bool

	mu       sync.Mutex
	launches []Launch
	nextPID  int
}

var _ processmgr.Launcher = (*Launcher)(nil)

func (l *Launcher) Launch(name string, argv []string) (processmgr.Handle, error) {
	l.mu.Lock()
	if l.Err != nil {
		l.mu.Unlock()
		return nil, l.Err
	}
	l.nextPID++
	h := &Handle{pid: 10000 + l.nextPID, done: make(chan struct{}), ignoreClose: l.IgnoreClose}
	l.launches = append(l.launches, Launch{Name: name, Argv: append([]string(nil), argv...), Handle: h})
	behavior := l.Behavior
	l.mu.Unlock()

	if behavior != nil {
		go behavior(name, argv, h)
	}
	return h, nil
}

// Count returns how many processes were launched.
func (l *Launcher) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.launches)
}

// Launches returns a copy of every recorded launch, oldest first.
func (l *Launcher) Launches() []Launch {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Launch(nil), l.launches...)
}

// Last returns the handle of the most recent launch, or nil.
func (l *Launcher) Last() *Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.launches) == 0 {
		return nil
	}
	return l.launches[len(l.launches)-1].Handle
}

// Alive counts launched processes that have not exited yet.
func (l *Launcher) Alive() int {
	n := 0
	for _, launch := range l.Launches() {
		if launch.Handle.Liveness() == processmgr.Alive {
			n++
		}
	}
	return n
}

// Handle is a fake running process.
type Handle struct {
	pid         int
	done        chan struct{}
	once        sync.Once
	exitErr     error
	ignoreClose bool

	closed atomic.Bool
	killed atomic.Bool
}

var _ processmgr.Handle = (*Handle)(nil)

func (h *Handle) PID() int              { return h.pid }
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) Liveness() processmgr.Liveness {
	select {
	case <-h.done:
		return processmgr.Exited
	default:
		return processmgr.Alive
	}
}

// Exit simulates the process terminating on its own.
func (h *Handle) Exit() { h.ExitWith(nil) }

// ExitWith simulates the process terminating with the given Wait result.
func (h *Handle) ExitWith(err error) {
	h.once.Do(func() {
		h.exitErr = err
		close(h.done)
	})
}

// ExitErr returns the error passed to ExitWith once the process is done.
func (h *Handle) ExitErr() error {
	select {
	case <-h.done:
		return h.exitErr
	default:
		return nil
	}
}

func (h *Handle) Close() {
	h.closed.Store(true)
	if !h.ignoreClose {
		h.Exit()
	}
}

func (h *Handle) Kill() {
	h.killed.Store(true)
	h.Exit()
}

// Closed reports whether Close was called.
func (h *Handle) Closed() bool { return h.closed.Load() }

// Killed reports whether Kill was called.
func (h *Handle) Killed() bool { return h.killed.Load() }
