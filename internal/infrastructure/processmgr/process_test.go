//go:build linux

package processmgr

import (
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func waitDone(t *testing.T, h Handle, d time.Duration) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(d):
		t.Fatalf("process %d did not exit within %v", h.PID(), d)
	}
}

func TestExecLauncher(t *testing.T) {
	logs := NewLogManager()
	l := NewExecLauncher(zap.NewNop(), logs, ExecLauncherOptions{Grace: 200 * time.Millisecond})

	t.Run("captures output and reports exit", func(t *testing.T) {
		h, err := l.Launch("stream:a", []string{"/bin/sh", "-c", "echo hello; echo oops >&2; exit 3"})
		if err != nil {
			t.Fatalf("Launch: %v", err)
		}
		waitDone(t, h, 5*time.Second)

		if h.Liveness() != Exited {
			t.Errorf("Liveness = %v, want exited", h.Liveness())
		}
		if h.ExitErr() == nil {
			t.Error("ExitErr = nil for exit status 3")
		}

		tail := strings.Join(logs.Tail("stream:a", 0), "\n")
		if !strings.Contains(tail, "hello") || !strings.Contains(tail, "oops") {
			t.Errorf("log tail missing output:\n%s", tail)
		}
	})

	t.Run("close terminates a running process", func(t *testing.T) {
		h, err := l.Launch("stream:b", []string{"/bin/sh", "-c", "sleep 30"})
		if err != nil {
			t.Fatalf("Launch: %v", err)
		}
		if h.Liveness() != Alive {
			t.Fatalf("Liveness = %v, want alive", h.Liveness())
		}

		h.Close()
		h.Close() // idempotent
		waitDone(t, h, 5*time.Second)
	})

	t.Run("close escalates when SIGTERM is ignored", func(t *testing.T) {
		h, err := l.Launch("stream:c", []string{"/bin/sh", "-c", "trap '' TERM; sleep 30"})
		if err != nil {
			t.Fatalf("Launch: %v", err)
		}
		time.Sleep(100 * time.Millisecond) // let the trap install
		h.Close()
		waitDone(t, h, 5*time.Second)
	})

	t.Run("kill is immediate", func(t *testing.T) {
		h, err := l.Launch("capture:a", []string{"/bin/sh", "-c", "sleep 30"})
		if err != nil {
			t.Fatalf("Launch: %v", err)
		}
		h.Kill()
		waitDone(t, h, 2*time.Second)
	})

	t.Run("missing binary fails to launch", func(t *testing.T) {
		if _, err := l.Launch("stream:d", []string{"/nonexistent/ffmpeg"}); err == nil {
			t.Fatal("expected launch error")
		}
		if tail := logs.Tail("stream:d", 0); len(tail) == 0 {
			t.Error("launch failure not recorded in log tail")
		}
	})
}
