// Package ffmpegcmd builds canonical ffmpeg invocations for camera streams.
//
// Design:
//
//   - This layer is a pure "command construction" module: no execution, no I/O.
//     It returns one of two projections of the same intent: argv (process
//     argument vector) or a shell-quoted command string (for logging).
//
// Emission policy:
//
//   - Numeric flags are ALWAYS emitted (including 0).
//   - String flags and positionals are emitted only when non-empty.
//   - argv[0] is the configured binary, mirroring POSIX/Go norms.
//
// Usage:
//
//	argv := ffmpegcmd.HLS(bin, cam, opts)        // []string{"ffmpeg", "-hide_banner", ...}
//	argv := ffmpegcmd.Snapshot(bin, cam, opts)   // single-frame JPEG extraction
//
// Process lifecycle belongs in processmgr.
package ffmpegcmd

import (
	"net/url"
	"strconv"
	"strings"
)

// Builder constructs argv and shell-safe command strings for ffmpeg.
//
// The Builder implements a fluent API; it is NOT concurrency-safe.
// Callers should treat a Builder as a single-use, short-lived value.
type Builder struct {
	args []string // argv including binary name at index 0
}

// NewBuilder returns a Builder pre-seeded with the binary name.
func NewBuilder(bin string) *Builder {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &Builder{args: []string{bin}}
}

// WithIntFlag appends a flag with a base-10 int value (always emitted).
func (b *Builder) WithIntFlag(flag string, val int) *Builder {
	b.args = append(b.args, flag, strconv.Itoa(val))
	return b
}

// WithInt64Flag appends a flag with a base-10 int64 value (always emitted).
func (b *Builder) WithInt64Flag(flag string, val int64) *Builder {
	b.args = append(b.args, flag, strconv.FormatInt(val, 10))
	return b
}

// WithStringFlag appends a flag with a string value if non-empty.
func (b *Builder) WithStringFlag(flag, val string) *Builder {
	if val != "" {
		b.args = append(b.args, flag, val)
	}
	return b
}

// WithFlagIf appends flag and val only when cond holds.
func (b *Builder) WithFlagIf(cond bool, flag, val string) *Builder {
	if cond {
		b.args = append(b.args, flag, val)
	}
	return b
}

// WithSwitch appends value-less options such as -y or -an.
func (b *Builder) WithSwitch(flags ...string) *Builder {
	b.args = append(b.args, flags...)
	return b
}

// WithString appends a positional string argument if non-empty.
func (b *Builder) WithString(arg string) *Builder {
	if arg != "" {
		b.args = append(b.args, arg)
	}
	return b
}

// BuildArgv returns a copy of the constructed argument vector.
func (b *Builder) BuildArgv() []string {
	out := make([]string, len(b.args))
	copy(out, b.args)
	return out
}

// BuildString returns a single shell-quoted command string.
func (b *Builder) BuildString() string {
	return Quote(b.args)
}

// Quote renders argv as a POSIX shell command line.
func Quote(argv []string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = shQuote(a)
	}
	return strings.Join(quoted, " ")
}

// Redacted is Quote with URL passwords masked, for log lines.
func Redacted(argv []string) string {
	masked := make([]string, len(argv))
	for i, a := range argv {
		masked[i] = a
		if !strings.Contains(a, "://") {
			continue
		}
		if u, err := url.Parse(a); err == nil && u.User != nil {
			masked[i] = u.Redacted()
		}
	}
	return Quote(masked)
}

// shQuote returns a POSIX-safe single-quoted token.
//
// Empty strings become "''" to preserve round-trippability.
func shQuote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
