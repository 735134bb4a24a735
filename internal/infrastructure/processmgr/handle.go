package processmgr

// Liveness is the outcome of a non-blocking liveness check.
type Liveness int

const (
	// Unknown means the state could not be determined (never started).
	// Callers must not treat it as either alive or exited.
	Unknown Liveness = iota
	Alive
	Exited
)

func (l Liveness) String() string {
	switch l {
	case Alive:
		return "alive"
	case Exited:
		return "exited"
	default:
		return "unknown"
	}
}

// Handle is the view of a running transcoder that owners rely on.
type Handle interface {
	PID() int
	Liveness() Liveness
	// Done is closed once the process has been reaped.
	Done() <-chan struct{}
	// ExitErr is the result of Wait; nil before Done fires or on a clean exit.
	ExitErr() error
	// Close requests graceful termination; idempotent and non-blocking.
	Close()
	// Kill terminates the process group immediately.
	Kill()
}

// Launcher starts transcoder processes. name identifies the owner
// (e.g. "stream:<camID>") and selects the log buffer the output goes to.
type Launcher interface {
	Launch(name string, argv []string) (Handle, error)
}
