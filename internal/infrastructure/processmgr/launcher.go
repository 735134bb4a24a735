//go:build linux

package processmgr

import (
	"os"
	"time"

	"go.uber.org/zap"
)

// ExecLauncher launches real child processes.
type ExecLauncher struct {
	log   *zap.Logger
	logs  *LogManager
	env   []string
	grace time.Duration
}

type ExecLauncherOptions struct {
	// Env for the child; nil inherits the server environment.
	Env []string
	// Grace between SIGTERM and SIGKILL on Close; default 3s.
	Grace time.Duration
}

func NewExecLauncher(log *zap.Logger, logs *LogManager, opts ExecLauncherOptions) *ExecLauncher {
	env := opts.Env
	if env == nil {
		env = os.Environ()
	}
	return &ExecLauncher{
		log:   log.Named("processmgr"),
		logs:  logs,
		env:   env,
		grace: opts.Grace,
	}
}

// Launch starts argv and returns its handle. Output is appended to the
// log buffer registered under name, marked with a header line per run.
func (l *ExecLauncher) Launch(name string, argv []string) (Handle, error) {
	buf := l.logs.Get(name)
	log := l.log.Named(name)

	p, err := newProcess(log, buf, l.env, argv, l.grace)
	if err != nil {
		return nil, err
	}

	buf.Append("--- launch " + time.Now().Format(time.RFC3339) + " ---")
	if err := p.Start(); err != nil {
		buf.Append("launch failed: " + err.Error())
		return nil, err
	}
	return p, nil
}
