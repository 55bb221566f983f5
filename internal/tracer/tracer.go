// Package tracer implements the exec-tracing engine: it launches a root
// command under ptrace, follows the tree of processes and threads it spawns,
// reconstructs a structured event for every execve/execveat attempt, and
// emits the filtered event stream to consumers.
package tracer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/orhun/tracexec/internal/event"
)

// SeccompMode selects whether the seccomp-BPF optimization filter is used.
type SeccompMode string

const (
	// SeccompAuto installs the filter when the kernel supports it and the
	// session allows it, falling back to full syscall-stop tracing otherwise.
	SeccompAuto SeccompMode = "auto"
	// SeccompOn requires the filter; session setup fails without support.
	SeccompOn SeccompMode = "on"
	// SeccompOff disables the filter unconditionally.
	SeccompOff SeccompMode = "off"
)

// ParseSeccompMode converts a user-supplied mode string.
func ParseSeccompMode(s string) (SeccompMode, error) {
	switch SeccompMode(s) {
	case SeccompAuto, SeccompOn, SeccompOff:
		return SeccompMode(s), nil
	}
	return "", fmt.Errorf("invalid seccomp-bpf mode %q (want auto, on or off)", s)
}

// StdioMode selects where the root tracee's standard streams go.
type StdioMode int

const (
	// StdioInherit passes the tracer's own stdio through (logging mode).
	StdioInherit StdioMode = iota
	// StdioNull redirects all three streams to /dev/null.
	StdioNull
	// StdioPty connects the tracee to a fresh pseudo-terminal; the master
	// side is available through Session.Pty.
	StdioPty
)

// Config describes one trace session. It is constructed by the CLI layer and
// read-only once the session starts.
type Config struct {
	// Command is the root command and its arguments.
	Command []string
	// WorkingDir, if set, is the tracee's working directory.
	WorkingDir string
	// Credential switches the tracee to another user (root only). Setting
	// it disables the seccomp optimization for the whole session.
	Credential *syscall.Credential
	// Seccomp selects the optimization filter mode.
	Seccomp SeccompMode
	// Stdio selects the tracee's standard stream wiring.
	Stdio StdioMode
	// Rules filters the emitted event stream.
	Rules event.Rules
	// TerminateOnExit sends SIGTERM to the remaining tree when the session
	// context is canceled, instead of detaching.
	TerminateOnExit bool
	// KillOnExit kills the remaining tree outright on cancellation, and
	// arranges for the kernel to do the same if the tracer dies.
	KillOnExit bool
	// ShimPath overrides the helper binary re-executed as the tracee parent.
	// Defaults to /proc/self/exe.
	ShimPath string
}

func (c Config) validate() error {
	if len(c.Command) == 0 {
		return errors.New("no command to trace")
	}
	if c.TerminateOnExit && c.KillOnExit {
		return errors.New("terminate-on-exit and kill-on-exit are mutually exclusive")
	}
	return nil
}

// ExitStatus is the root tracee's completion result.
type ExitStatus struct {
	Code     int
	Signal   syscall.Signal
	Signaled bool
	// Detached is set when the session was canceled and the tree was left
	// running.
	Detached bool
}

// ExitCode maps the status to a shell-style exit code: the exit code itself,
// 128+signal for signal deaths, 130 for a detached (interrupted) session.
func (e ExitStatus) ExitCode() int {
	if e.Detached {
		return 130
	}
	if e.Signaled {
		return 128 + int(e.Signal)
	}
	return e.Code
}

// Session is one trace run. Create with New, drive with Run, consume events
// through Events or OnEvent.
type Session struct {
	cfg        Config
	dispatcher *event.Dispatcher

	seccompActive bool
	ptm           *os.File // pty master, StdioPty only

	platform platformState
}

// Events returns the filtered event stream. The channel is closed when the
// session ends.
func (s *Session) Events() <-chan event.Event {
	return s.dispatcher.Events()
}

// OnEvent registers a callback for every emitted event. Callbacks run on the
// supervisor goroutine and must not block.
func (s *Session) OnEvent(cb func(event.Event)) {
	s.dispatcher.OnEvent(cb)
}

// SeccompActive reports whether the optimization filter is in use.
func (s *Session) SeccompActive() bool {
	return s.seccompActive
}

// Pty returns the master side of the tracee's pseudo-terminal, or nil when
// the session was not configured with StdioPty. The pty exists as soon as
// New returns, so a relay can attach before Run starts the tracee.
func (s *Session) Pty() *os.File {
	return s.ptm
}

// New validates the configuration and prepares a session. On Linux this
// decides between the compiled seccomp filter and the full-trace fallback;
// installation happens when Run launches the root tracee.
func New(cfg Config) (*Session, error) {
	if cfg.Seccomp == "" {
		cfg.Seccomp = SeccompAuto
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	s := &Session{
		cfg:        cfg,
		dispatcher: event.NewDispatcher(cfg.Rules),
	}
	if err := s.prepare(); err != nil {
		return nil, err
	}
	return s, nil
}

// Run launches the root command and supervises the tree until every tracee
// has exited or the context is canceled. It returns the root tracee's exit
// status. Errors are returned only for startup failures; anything
// attributable to a single tracee is reported through the event stream.
func (s *Session) Run(ctx context.Context) (ExitStatus, error) {
	defer s.dispatcher.Close()
	return s.run(ctx)
}
