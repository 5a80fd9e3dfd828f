package guard

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DenialRecord is the data captured for a single denied access, per
// spec.md §3/§4.3.3.
type DenialRecord struct {
	// Time is the wall-clock moment the denial occurred.
	Time time.Time
	// Pid is the calling process's pid.
	Pid int
	// Proc is a process identifier string; "pid:<pid>" is acceptable when
	// no richer name is available.
	Proc string
	// Op is the denied operation.
	Op Operation
	// Path is the virtual path the request referred to.
	Path string
}

// format renders the record as the exact denial log line required by
// spec.md §6:
//
//	[DENIED] <iso8601-utc> pid=<pid> proc=<procname> op=<read|write|execute> path=<virtual-absolute-path>
func (r DenialRecord) format() string {
	return fmt.Sprintf("[DENIED] %s pid=%d proc=%s op=%s path=%s\n",
		r.Time.UTC().Format("2006-01-02T15:04:05Z"), r.Pid, r.Proc, r.Op, r.Path)
}

// Logger owns an optional append-only file sink and a "quiet" flag. It is
// safe for concurrent use: every write is serialized behind a mutex, and
// stderr and the log file (when present) always receive identical bytes
// via io.MultiWriter, matching the fan-out pattern in
// ehrlich-b-wingthing's internal/logger package.
type Logger struct {
	mu    sync.Mutex
	out   io.Writer
	quiet bool

	id string // debug-only instance identity, not part of the denial line
}

// NewLogger constructs a Logger writing to stderr (unless quiet) and,
// additionally, to logFile if non-nil. The caller owns logFile's lifetime;
// the Logger never closes it.
func NewLogger(stderr io.Writer, logFile *os.File, quiet bool) *Logger {
	var writers []io.Writer

	if !quiet {
		writers = append(writers, stderr)
	}

	if logFile != nil {
		writers = append(writers, logFile)
	}

	var out io.Writer = io.Discard
	if len(writers) > 0 {
		out = io.MultiWriter(writers...)
	}

	return &Logger{out: out, quiet: quiet, id: uuid.NewString()}
}

// Deny records a denial, writing the formatted line to every configured
// sink. When quiet is set, stderr is excluded but the log file (if any)
// still receives the line, per spec.md S4.
func (l *Logger) Deny(rec DenialRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, _ = io.WriteString(l.out, rec.format())
}

// ID returns the logger's debug-only instance identity.
func (l *Logger) ID() string {
	return l.id
}

// Startup records, to the same sinks as Deny, that an overlay server bound
// to target has come up under this logger's instance id. All overlays of
// one run share one Logger, so their [STARTUP] lines carry the same id: the
// id tells separate Logger instances apart, not the overlays of one run,
// and [DENIED] lines do not carry it.
func (l *Logger) Startup(target string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, _ = fmt.Fprintf(l.out, "[STARTUP] instance=%s target=%s\n", l.id, target)
}
