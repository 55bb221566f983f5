package tracer

import (
	"github.com/orhun/tracexec/internal/event"
)

// ForkKind distinguishes how a new tracee came to exist.
type ForkKind int

const (
	// ForkProcess is a fork/vfork/clone without CLONE_THREAD: the child gets
	// a copy of the parent's baselines, mirroring copy-on-fork semantics.
	ForkProcess ForkKind = iota
	// ForkThread shares the parent's baselines by reference until an exec
	// replaces them.
	ForkThread
)

// Process is the tracked state of one tracee. All mutation happens on the
// supervisor goroutine; snapshots handed to consumers are copies.
//
// Kernel pids are reused after exit, so a Process is identified by (Pid, Gen):
// Gen is a monotonic attach counter that tells a reused pid apart from its
// predecessor's record.
type Process struct {
	Pid    int
	Gen    uint64
	Parent *Process // nil for the root tracee
	Leader bool     // thread-group leader

	Comm string
	Cwd  string

	// Baselines: last-observed state used as the reference point for diffs
	// at the next exec boundary.
	EnvBaseline []string
	FDBaseline  []event.FD

	Exited     bool
	ExitStatus int

	// Supervisor bookkeeping.
	started   bool // first stop consumed
	insyscall bool
	pending   *pendingExec
	execDone  bool // exec succeeded, the trailing syscall-exit stop is swallowed
}

// ParentChain walks parent links from the process upward, nearest first.
// Exited ancestors stay in the chain; their last comm is retained.
func (p *Process) ParentChain() []event.ProcessRef {
	var chain []event.ProcessRef
	for cur := p.Parent; cur != nil; cur = cur.Parent {
		chain = append(chain, event.ProcessRef{Pid: cur.Pid, Comm: cur.Comm})
	}
	return chain
}

// tree owns the map of live tracees. It is not safe for concurrent use; the
// supervisor goroutine holds exclusive mutation rights.
type tree struct {
	gen  uint64
	live map[int]*Process
}

func newTree() *tree {
	return &tree{live: make(map[int]*Process)}
}

// Attach inserts a state for a tracee observed without a known parent (the
// root, or a stray pid the kernel reported before its fork event).
func (t *tree) Attach(pid int) *Process {
	t.gen++
	p := &Process{Pid: pid, Gen: t.gen, Leader: true}
	t.live[pid] = p
	return p
}

// Fork inserts a state for a child reported by its parent's fork/clone event.
// A missing parent is tolerated: the child is attached parentless. The child
// may already be present when its first stop raced ahead of the parent's fork
// event; its record is then completed in place.
func (t *tree) Fork(parentPid, childPid int, kind ForkKind) *Process {
	parent, ok := t.live[parentPid]
	if !ok {
		return t.Attach(childPid)
	}

	if existing, ok := t.live[childPid]; ok {
		existing.Parent = parent
		existing.Leader = kind == ForkProcess
		existing.Comm = parent.Comm
		existing.Cwd = parent.Cwd
		if kind == ForkThread {
			existing.EnvBaseline = parent.EnvBaseline
			existing.FDBaseline = parent.FDBaseline
		} else {
			existing.EnvBaseline = append([]string(nil), parent.EnvBaseline...)
			existing.FDBaseline = append([]event.FD(nil), parent.FDBaseline...)
		}
		return existing
	}

	t.gen++
	child := &Process{
		Pid:    childPid,
		Gen:    t.gen,
		Parent: parent,
		Leader: kind == ForkProcess,
		Comm:   parent.Comm,
		Cwd:    parent.Cwd,
	}
	switch kind {
	case ForkThread:
		child.EnvBaseline = parent.EnvBaseline
		child.FDBaseline = parent.FDBaseline
	default:
		child.EnvBaseline = append([]string(nil), parent.EnvBaseline...)
		child.FDBaseline = append([]event.FD(nil), parent.FDBaseline...)
	}
	t.live[childPid] = child
	return child
}

// Lookup finds the live state for a pid. A miss is recoverable: it means a
// late notification raced with the tracee's exit.
func (t *tree) Lookup(pid int) (*Process, bool) {
	p, ok := t.live[pid]
	return p, ok
}

// Exit marks the tracee terminal and evicts it from the live map. The record
// stays reachable through children's parent links for historical display.
func (t *tree) Exit(pid, status int) (*Process, bool) {
	p, ok := t.live[pid]
	if !ok {
		return nil, false
	}
	p.Exited = true
	p.ExitStatus = status
	delete(t.live, pid)
	return p, true
}

// Size returns the number of live tracees.
func (t *tree) Size() int {
	return len(t.live)
}
