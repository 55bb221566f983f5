// Package event defines the events emitted by the tracer and the rules that
// decide which of them reach consumers.
package event

import (
	"strings"
	"time"
)

// Category classifies an event for filtering purposes.
type Category string

const (
	CategoryWarning     Category = "warning"
	CategoryError       Category = "error"
	CategoryExecSuccess Category = "exec-success"
	CategoryExecFailure Category = "exec-failure"
	CategoryTraceeExit  Category = "tracee-exit"
	CategoryOtherSignal Category = "other-signal"
)

// Categories lists every known category.
var Categories = []Category{
	CategoryWarning,
	CategoryError,
	CategoryExecSuccess,
	CategoryExecFailure,
	CategoryTraceeExit,
	CategoryOtherSignal,
}

// ParseCategory converts a user-supplied name into a Category.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, true
		}
	}
	return "", false
}

// FDKind classifies an open file descriptor.
type FDKind string

const (
	FDFile   FDKind = "file"
	FDPipe   FDKind = "pipe"
	FDSocket FDKind = "socket"
	FDOther  FDKind = "other"
)

// FD describes one open descriptor of a tracee.
type FD struct {
	Num         int    `json:"num"`
	Kind        FDKind `json:"kind"`
	Target      string `json:"target"` // path for files, descriptive label otherwise
	CloseOnExec bool   `json:"cloexec"`
}

// EnvDiff is the difference between the environment passed to an exec and the
// process's prior baseline. Comparison is order-insensitive.
type EnvDiff struct {
	Added   map[string]string `json:"added,omitempty"`
	Removed []string          `json:"removed,omitempty"`
	Changed map[string]string `json:"changed,omitempty"` // key -> new value
}

// Identity reports whether the diff is empty.
func (d EnvDiff) Identity() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// FDDiff is the difference between the fd table before and after an exec.
type FDDiff struct {
	Closed []int `json:"closed,omitempty"` // present before, absent after
	Kept   []int `json:"kept,omitempty"`
	Opened []int `json:"opened,omitempty"` // absent before, present after
}

// ProcessRef identifies an ancestor in the parent chain at the time an event
// was built. Comm is the last comm observed for that ancestor.
type ProcessRef struct {
	Pid  int    `json:"pid"`
	Comm string `json:"comm"`
}

// Exec describes one completed exec attempt, success or failure.
//
// Fields the tracer could not read (tracee raced to exit, permission revoked)
// are left at their zero value and named in Unavailable, so consumers can tell
// "empty" apart from "unreadable".
type Exec struct {
	Filename     string   `json:"filename"`
	Interpreters []string `json:"interpreters,omitempty"` // resolved shebang chain
	Argv         []string `json:"argv"`
	Env          []string `json:"env"` // envp as passed to the syscall
	Cwd          string   `json:"cwd"`
	FDs          []FD     `json:"fds"`

	ParentChain []ProcessRef `json:"parent_chain,omitempty"`

	// Outcome. On success Comm is the post-exec comm and the diffs are set.
	// On failure Errno carries the error and post-exec fields stay empty.
	Success bool    `json:"success"`
	Errno   string  `json:"errno,omitempty"`
	Comm    string  `json:"comm,omitempty"`
	EnvDiff *EnvDiff `json:"env_diff,omitempty"`
	FDDiff  *FDDiff  `json:"fd_diff,omitempty"`

	Unavailable []string `json:"unavailable,omitempty"`
}

// Event is one entry in the traced event stream. Exactly one of the payload
// fields is meaningful depending on Category.
type Event struct {
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Category  Category  `json:"category"`

	Pid  int    `json:"pid,omitempty"`
	Comm string `json:"comm,omitempty"`

	// Message carries warning/error detail.
	Message string `json:"message,omitempty"`
	// ExitStatus is set for tracee-exit events (exit code, or 128+signal).
	ExitStatus *int `json:"exit_status,omitempty"`
	// Signal names the delivered signal for other-signal events.
	Signal string `json:"signal,omitempty"`
	// Exec is set for exec-success and exec-failure events.
	Exec *Exec `json:"exec,omitempty"`
}
