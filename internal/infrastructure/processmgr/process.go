//go:build linux

package processmgr

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// process encapsulates one supervised transcoder run.
// Features:
//   - race-free pipe setup (stdout/stderr; stdin is /dev/null)
//   - stderr/stdout tail captured into a shared log buffer
//   - deterministic teardown (SIGTERM → grace → SIGKILL) via Close
//   - immediate SIGKILL via Kill for hard wall-clock caps
//   - idempotent Start / Close lifecycle
//
// Canonical usage:
//
//	p → Start() → Liveness()/Done() → Close() → <-Done()
type process struct {
	log    *zap.Logger
	logBuf *logBuffer
	grace  time.Duration

	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser

	// Closed after the process is fully reaped.
	done      chan struct{}
	closeOnce sync.Once
	startOnce sync.Once

	started atomic.Bool
	cmdPID  atomic.Int64

	// Written once by supervise before done is closed.
	exitErr error
}

// newProcess constructs a process wrapper around exec.Cmd.
//
// It performs early pipe allocation and applies Linux-specific attributes:
//   - Setpgid: isolates the child into its own process group
//   - Pdeathsig: ensures child receives SIGKILL if the parent dies
func newProcess(log *zap.Logger, logBuf *logBuffer, env, argv []string, grace time.Duration) (*process, error) {
	if log == nil || logBuf == nil || len(argv) == 0 {
		return nil, errors.New("newProcess: invalid parameters")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	stdout, stderr, err := pipes(cmd)
	if err != nil {
		return nil, err
	}

	cmd.Env = env
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}

	if grace <= 0 {
		grace = 3 * time.Second
	}

	return &process{
		log:    log,
		logBuf: logBuf,
		grace:  grace,
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		done:   make(chan struct{}),
	}, nil
}

// Start launches the command exactly once. On success background drains
// begin consuming stdout/stderr and Done() fires when the process is reaped.
func (p *process) Start() error {
	err := errors.New("process already started")

	p.startOnce.Do(func() {
		if err = p.cmd.Start(); err != nil {
			err = fmt.Errorf("start %s: %w", p.cmd.Path, err)
			return
		}

		pid := p.cmd.Process.Pid
		p.started.Store(true)
		p.cmdPID.Store(int64(pid))

		p.log.Info("process started", zap.Int("cmd_pid", pid))
		go p.supervise()
	})

	return err
}

// supervise drains both pipes, reaps the child once and fires Done().
// exec.Cmd.Wait must not run before the pipe readers finish.
func (p *process) supervise() {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); p.drain("stdout", p.stdout) }()
	go func() { defer wg.Done(); p.drain("stderr", p.stderr) }()
	wg.Wait()

	err := p.cmd.Wait()
	if err != nil {
		var eerr *exec.ExitError
		if errors.As(err, &eerr) {
			status := eerr.ProcessState.Sys().(syscall.WaitStatus)
			p.log.Info("process exited with error status",
				zap.Int("exit_code", status.ExitStatus()),
				zap.Bool("signaled", status.Signaled()),
				zap.String("signal", status.Signal().String()))
		} else {
			p.log.Error("failed to wait for process", zap.Error(err))
		}
	} else {
		p.log.Info("process exited cleanly")
	}

	p.exitErr = err
	close(p.done)
}

// drain streams one pipe into the shared log buffer.
func (p *process) drain(name string, r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	for sc.Scan() {
		p.logBuf.Append(sc.Text())
	}

	if err := sc.Err(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		p.log.Warn("pipe scanner failure", zap.String("pipe", name), zap.Error(err))
	}
}

func (p *process) PID() int              { return int(p.cmdPID.Load()) }
func (p *process) Done() <-chan struct{} { return p.done }

// ExitErr returns the result of Wait. Valid only after Done() fires.
func (p *process) ExitErr() error {
	select {
	case <-p.done:
		return p.exitErr
	default:
		return nil
	}
}

// Liveness classifies the process without blocking.
func (p *process) Liveness() Liveness {
	if !p.started.Load() {
		return Unknown
	}
	select {
	case <-p.done:
		return Exited
	default:
		return Alive
	}
}

// Close initiates deterministic shutdown:
//
//   - sends SIGTERM to the process group
//   - escalates to SIGKILL after the grace period if still alive
//
// Close() is idempotent, concurrency-safe and does not block.
func (p *process) Close() {
	p.closeOnce.Do(func() {
		go func() {
			if !p.started.Load() {
				p.log.Warn("Close() called before Start(); ignored")
				return
			}

			select {
			case <-p.done:
				p.log.Debug("Close() called after Done(); ignored")
				return
			default:
			}

			pid := p.PID()
			p.log.Info("sending SIGTERM", zap.Int("cmd_pid", pid))
			if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
				p.log.Warn("SIGTERM failed", zap.Error(err), zap.Int("cmd_pid", pid))
			}

			timer := time.NewTimer(p.grace)
			defer timer.Stop()

			select {
			case <-p.done:
				p.log.Info("process exited gracefully", zap.Int("cmd_pid", pid))
			case <-timer.C:
				p.log.Warn("grace timeout expired; sending SIGKILL", zap.Int("cmd_pid", pid))
				p.Kill()
			}
		}()
	})
}

// Kill sends SIGKILL to the process group right away.
func (p *process) Kill() {
	if !p.started.Load() {
		return
	}
	select {
	case <-p.done:
		return
	default:
	}

	pid := p.PID()
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		p.log.Error("SIGKILL failed", zap.Error(err), zap.Int("cmd_pid", pid))
	}
}

// pipes prepares stdout and stderr for exec.Cmd.
//
//   - StdoutPipe() and StderrPipe() each create an os.Pipe().
//   - exec.Cmd does NOT own these pipes until Start() succeeds; if Start()
//     fails it closes them itself.
//   - Before Start(), the caller must close any pipe created during a setup error.
//
// stdin stays nil so the child reads from /dev/null.
func pipes(cmd *exec.Cmd) (io.ReadCloser, io.ReadCloser, error) {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stdout pipe creation failure: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdout.Close()
		return nil, nil, fmt.Errorf("stderr pipe creation failure: %w", err)
	}

	return stdout, stderr, nil
}
