//go:build linux

package tracer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"sync/atomic"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"

	"github.com/orhun/tracexec/internal/event"
	"github.com/orhun/tracexec/internal/log"
	"github.com/orhun/tracexec/internal/proc"
)

// cancellation policies, stored in platformState.cancel.
const (
	cancelNone int32 = iota
	cancelDetach
	cancelTerminate
	cancelKill
)

type platformState struct {
	reader *proc.Reader
	procs  *tree

	// pty slave, handed to the root tracee at launch (StdioPty only)
	pts *os.File

	rootPid    int
	rootStatus *ExitStatus

	cancel atomic.Int32

	privWarned bool
}

// pendingExec is the "about to exec" capture taken at the entry boundary,
// held until the matching exit or exec event resolves the outcome.
type pendingExec struct {
	filename     string
	argv         []string
	envp         []string
	cwd          string
	fds          []event.FD
	interpreters []string
	unavailable  []string

	// effective uid before the exec, -1 when unknown
	euid int

	// signals that arrived inside the exec window, re-delivered in order
	// once the exec completes.
	queued []syscall.Signal
}

func (s *Session) prepare() error {
	reader, err := proc.NewReader()
	if err != nil {
		return err
	}
	active, err := buildFilter(s.cfg.Seccomp, s.cfg.Credential != nil)
	if err != nil {
		return err
	}
	s.seccompActive = active
	s.platform.reader = reader
	s.platform.procs = newTree()

	if s.cfg.Stdio == StdioPty {
		// The pty is allocated here, not at launch, so Pty is valid as
		// soon as New returns and a relay can attach before Run.
		ptm, pts, err := pty.Open()
		if err != nil {
			return fmt.Errorf("allocate pty: %w", err)
		}
		s.ptm = ptm
		s.platform.pts = pts
	}
	return nil
}

// launch starts the root tracee: our own binary running the shim command,
// which installs the seccomp filter (when active) and execs the target.
func (s *Session) launch() (*exec.Cmd, func(), error) {
	shim := s.cfg.ShimPath
	if shim == "" {
		shim = "/proc/self/exe"
	}
	args := []string{"shim"}
	if s.seccompActive {
		args = append(args, "--seccomp")
	}
	args = append(args, "--")
	args = append(args, s.cfg.Command...)

	cmd := exec.Command(shim, args...)
	cmd.Dir = s.cfg.WorkingDir
	attr := &syscall.SysProcAttr{
		Ptrace:     true,
		Credential: s.cfg.Credential,
	}
	cleanup := func() {}

	switch s.cfg.Stdio {
	case StdioNull:
		devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
		if err != nil {
			return nil, nil, fmt.Errorf("open %s: %w", os.DevNull, err)
		}
		cmd.Stdin = devnull
		cmd.Stdout = devnull
		cmd.Stderr = devnull
		attr.Setpgid = true
		cleanup = func() { devnull.Close() }
	case StdioPty:
		pts := s.platform.pts
		cmd.Stdin = pts
		cmd.Stdout = pts
		cmd.Stderr = pts
		attr.Setsid = true
		attr.Setctty = true
		cleanup = func() { pts.Close() }
	default:
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		attr.Setpgid = true
	}
	cmd.SysProcAttr = attr

	if err := cmd.Start(); err != nil {
		cleanup()
		if s.ptm != nil {
			s.ptm.Close()
			s.ptm = nil
		}
		return nil, nil, fmt.Errorf("launch %s: %w", s.cfg.Command[0], err)
	}
	return cmd, cleanup, nil
}

func (s *Session) run(ctx context.Context) (ExitStatus, error) {
	// The thread that issues ptrace requests must be the one the tracees
	// are attached to; pin the supervisor for the whole session.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	cmd, cleanup, err := s.launch()
	if err != nil {
		return ExitStatus{}, err
	}
	defer cleanup()

	root := cmd.Process.Pid
	s.platform.rootPid = root

	var ws unix.WaitStatus
	if _, err := unix.Wait4(root, &ws, unix.WALL, nil); err != nil {
		return ExitStatus{}, fmt.Errorf("wait for root tracee: %w", err)
	}
	if !ws.Stopped() {
		return ExitStatus{}, fmt.Errorf("root tracee %d did not stop after launch (status %#x)", root, ws)
	}

	opts := unix.PTRACE_O_TRACESYSGOOD |
		unix.PTRACE_O_TRACECLONE |
		unix.PTRACE_O_TRACEFORK |
		unix.PTRACE_O_TRACEVFORK |
		unix.PTRACE_O_TRACEEXEC
	if s.seccompActive {
		opts |= unix.PTRACE_O_TRACESECCOMP
	}
	if s.cfg.KillOnExit {
		opts |= unix.PTRACE_O_EXITKILL
	}
	if err := unix.PtraceSetOptions(root, opts); err != nil {
		unix.Kill(root, unix.SIGKILL)
		unix.Wait4(root, &ws, unix.WALL, nil)
		return ExitStatus{}, fmt.Errorf("set ptrace options: %w", err)
	}

	p := s.platform.procs.Attach(root)
	p.started = true
	if comm, err := s.platform.reader.Comm(root); err == nil {
		p.Comm = comm
	}

	if !s.seccompActive && s.cfg.Seccomp != SeccompOff {
		s.emitWarning(root, "seccomp-bpf filter unavailable, falling back to tracing every syscall")
	}

	stop := make(chan struct{})
	defer close(stop)
	go s.watchCancel(ctx, stop)

	s.resume(p, root, 0)
	log.Debug("trace session started", "root", root, "seccomp", s.seccompActive)

	for {
		wpid, err := unix.Wait4(-1, &ws, unix.WALL, nil)
		if err == unix.EINTR {
			continue
		}
		if err == unix.ECHILD {
			break
		}
		if err != nil {
			s.emitError(0, fmt.Sprintf("wait for tracees: %v", err))
			break
		}

		switch {
		case ws.Exited():
			s.handleExit(wpid, ws.ExitStatus(), 0, false)
		case ws.Signaled():
			s.handleExit(wpid, 0, ws.Signal(), true)
		case ws.Stopped():
			s.handleStop(wpid, ws)
		}

		if s.platform.procs.Size() == 0 {
			break
		}
	}

	return s.finalStatus(), nil
}

// watchCancel turns a context cancellation into signals toward the traced
// process group. The supervisor loop observes the resulting stops or exits
// and applies the configured policy.
func (s *Session) watchCancel(ctx context.Context, stop <-chan struct{}) {
	select {
	case <-stop:
		return
	case <-ctx.Done():
	}
	root := s.platform.rootPid
	switch {
	case s.cfg.KillOnExit:
		s.platform.cancel.Store(cancelKill)
		unix.Kill(-root, unix.SIGKILL)
	case s.cfg.TerminateOnExit:
		s.platform.cancel.Store(cancelTerminate)
		unix.Kill(-root, unix.SIGTERM)
	default:
		s.platform.cancel.Store(cancelDetach)
		// A stopped tracee is required for detach; the group-stop gives us
		// one stop per tracee to detach from.
		unix.Kill(-root, unix.SIGSTOP)
	}
}

func (s *Session) finalStatus() ExitStatus {
	if s.platform.rootStatus != nil {
		return *s.platform.rootStatus
	}
	if s.platform.cancel.Load() == cancelDetach {
		return ExitStatus{Detached: true}
	}
	// The root vanished without a recorded status; treat as killed.
	return ExitStatus{Signaled: true, Signal: unix.SIGKILL}
}

func (s *Session) handleExit(pid, code int, sig syscall.Signal, signaled bool) {
	status := code
	if signaled {
		status = 128 + int(sig)
	}
	p, ok := s.platform.procs.Exit(pid, status)
	if !ok {
		// Late notification for an already-evicted id.
		return
	}

	if pid == s.platform.rootPid {
		st := ExitStatus{Code: code, Signal: sig, Signaled: signaled}
		s.platform.rootStatus = &st
		if s.cfg.KillOnExit {
			// Root is gone; take the remaining tree down with it.
			unix.Kill(-pid, unix.SIGKILL)
		}
	}

	s.dispatcher.Emit(event.Event{
		Category:   event.CategoryTraceeExit,
		Pid:        pid,
		Comm:       p.Comm,
		ExitStatus: &status,
	})
}

func (s *Session) handleStop(pid int, ws unix.WaitStatus) {
	procs := s.platform.procs

	if s.platform.cancel.Load() == cancelDetach {
		// Session teardown: every stop is an opportunity to let one tracee
		// go. Detach resumes it, suppressing the stop signal we injected.
		if err := unix.PtraceDetach(pid); err != nil {
			log.Debug("detach failed", "pid", pid, "error", err)
		}
		procs.Exit(pid, 0)
		return
	}

	p, ok := procs.Lookup(pid)
	if !ok {
		// First stop of a child whose fork event has not arrived yet.
		p = procs.Attach(pid)
	}

	sig := ws.StopSignal()
	cause := ws.TrapCause()

	switch {
	case sig == unix.SIGTRAP|0x80:
		s.handleSyscallStop(p, pid)
	case cause == unix.PTRACE_EVENT_SECCOMP:
		s.handleSeccompStop(p, pid)
	case cause == unix.PTRACE_EVENT_EXEC:
		s.handleExecSucceeded(p, pid)
	case cause == unix.PTRACE_EVENT_FORK, cause == unix.PTRACE_EVENT_VFORK:
		if child, err := unix.PtraceGetEventMsg(pid); err == nil {
			procs.Fork(pid, int(child), ForkProcess)
		}
		s.resume(p, pid, 0)
	case cause == unix.PTRACE_EVENT_CLONE:
		if child, err := unix.PtraceGetEventMsg(pid); err == nil {
			kind := ForkProcess
			if tgid, err := s.platform.reader.TGID(int(child)); err == nil && tgid != int(child) {
				kind = ForkThread
			}
			procs.Fork(pid, int(child), kind)
		}
		s.resume(p, pid, 0)
	case cause > 0:
		// A trap event we did not ask for; resume with a default action so
		// the wait loop cannot deadlock on it.
		s.emitError(pid, fmt.Sprintf("unexpected ptrace stop (event %d)", cause))
		s.resume(p, pid, 0)
	default:
		s.handleSignalStop(p, pid, sig)
	}
}

func (s *Session) handleSignalStop(p *Process, pid int, sig syscall.Signal) {
	if !p.started && sig == unix.SIGSTOP {
		// Initial stop of a newly-cloned tracee; swallow it.
		p.started = true
		s.resume(p, pid, 0)
		return
	}

	if p.pending != nil {
		// Mid-exec signals are queued and re-delivered once the exec
		// completes, preserving order.
		p.pending.queued = append(p.pending.queued, sig)
		s.resume(p, pid, 0)
		return
	}

	s.dispatcher.Emit(event.Event{
		Category: event.CategoryOtherSignal,
		Pid:      pid,
		Comm:     p.Comm,
		Signal:   unix.SignalName(sig),
	})
	s.resume(p, pid, int(sig))
}

// handleSyscallStop services a SIGTRAP|0x80 stop. With the seccomp filter
// active the only such stop is the exit of an exec we resumed with
// PTRACE_SYSCALL; in fallback mode every syscall produces an entry and an
// exit stop and we track which side we are on.
func (s *Session) handleSyscallStop(p *Process, pid int) {
	var regs unix.PtraceRegs
	if err := unix.PtraceGetRegs(pid, &regs); err != nil {
		// Tracee raced to exit; its exit notification will follow.
		s.resume(p, pid, 0)
		return
	}

	if s.seccompActive {
		s.handleExecExit(p, pid, &regs)
		return
	}

	if !p.insyscall {
		p.insyscall = true
		nr := sysno(&regs)
		if nr == unix.SYS_EXECVE || nr == unix.SYS_EXECVEAT {
			s.captureExec(p, pid, &regs, nr)
		}
		unix.PtraceSyscall(pid, 0)
		return
	}

	p.insyscall = false
	if p.pending != nil || p.execDone {
		s.handleExecExit(p, pid, &regs)
		return
	}
	unix.PtraceSyscall(pid, 0)
}

// handleSeccompStop services a PTRACE_EVENT_SECCOMP stop: the entry of an
// exec-family syscall trapped by the optimization filter.
func (s *Session) handleSeccompStop(p *Process, pid int) {
	var regs unix.PtraceRegs
	if err := unix.PtraceGetRegs(pid, &regs); err != nil {
		s.resume(p, pid, 0)
		return
	}

	nr := sysno(&regs)
	if nr != unix.SYS_EXECVE && nr != unix.SYS_EXECVEAT {
		s.emitError(pid, fmt.Sprintf("seccomp trap for unexpected syscall %d", nr))
		s.resume(p, pid, 0)
		return
	}

	s.captureExec(p, pid, &regs, nr)
	// Proceed to the syscall-exit stop so the outcome can be read.
	unix.PtraceSyscall(pid, 0)
}

// captureExec records the "about to exec" request: filename, argv and envp
// as the tracee intends to pass them, plus the pre-exec /proc snapshot that
// baselines the diffs.
func (s *Session) captureExec(p *Process, pid int, regs *unix.PtraceRegs, nr uint64) {
	pend := &pendingExec{euid: -1}
	if euid, err := s.platform.reader.EUID(pid); err == nil {
		pend.euid = euid
	}

	var fnameAddr, argvAddr, envpAddr uint64
	dirfd := int32(unix.AT_FDCWD)
	if nr == unix.SYS_EXECVEAT {
		dirfd = int32(sysArg(regs, 0))
		fnameAddr = sysArg(regs, 1)
		argvAddr = sysArg(regs, 2)
		envpAddr = sysArg(regs, 3)
	} else {
		fnameAddr = sysArg(regs, 0)
		argvAddr = sysArg(regs, 1)
		envpAddr = sysArg(regs, 2)
	}

	var err error
	if pend.filename, err = readTraceeString(pid, uintptr(fnameAddr)); err != nil {
		pend.unavailable = append(pend.unavailable, "filename")
	}
	if pend.argv, err = readTraceeStringArray(pid, uintptr(argvAddr)); err != nil {
		pend.unavailable = append(pend.unavailable, "argv")
	}
	if pend.envp, err = readTraceeStringArray(pid, uintptr(envpAddr)); err != nil {
		pend.unavailable = append(pend.unavailable, "env")
	}

	snap := s.platform.reader.Read(pid)
	if snap.CwdErr != nil {
		pend.unavailable = append(pend.unavailable, "cwd")
	} else {
		pend.cwd = snap.Cwd
	}
	if snap.FDsErr != nil {
		pend.unavailable = append(pend.unavailable, "fds")
	} else {
		pend.fds = snap.FDs
	}

	// Seed baselines for tracees whose history predates the session.
	if p.EnvBaseline == nil && snap.EnvErr == nil {
		p.EnvBaseline = snap.Env
	}
	if p.FDBaseline == nil && snap.FDsErr == nil {
		p.FDBaseline = snap.FDs
	}
	if p.Comm == "" && snap.CommErr == nil {
		p.Comm = snap.Comm
	}
	if p.Cwd == "" {
		p.Cwd = pend.cwd
	}

	if target := s.resolveExecPath(pid, pend, dirfd); target != "" {
		pend.interpreters = proc.ResolveInterpreters(target)
		s.checkPrivilegeEscalation(pid, target)
	}

	p.pending = pend
}

// resolveExecPath turns the exec target into an absolute path, best effort:
// relative execve paths resolve against the tracee cwd, execveat paths
// against their dirfd.
func (s *Session) resolveExecPath(pid int, pend *pendingExec, dirfd int32) string {
	name := pend.filename
	if name == "" {
		return ""
	}
	if filepath.IsAbs(name) {
		return name
	}
	if dirfd != unix.AT_FDCWD {
		base, err := os.Readlink(filepath.Join("/proc", strconv.Itoa(pid), "fd", strconv.Itoa(int(dirfd))))
		if err != nil {
			return ""
		}
		return filepath.Join(base, name)
	}
	if pend.cwd == "" {
		return ""
	}
	return filepath.Join(pend.cwd, name)
}

// checkPrivilegeEscalation warns, once per session, when a tracee execs a
// setuid/setgid target. Under the seccomp filter no_new_privs suppresses the
// elevation entirely; in fallback mode the credential change goes through
// but the trace may lose visibility.
func (s *Session) checkPrivilegeEscalation(pid int, target string) {
	if s.platform.privWarned {
		return
	}
	info, err := os.Stat(target)
	if err != nil || info.Mode()&(os.ModeSetuid|os.ModeSetgid) == 0 {
		return
	}
	s.platform.privWarned = true
	if s.seccompActive {
		s.emitWarning(pid, fmt.Sprintf(
			"%s is setuid/setgid; the seccomp-bpf filter suppresses privilege elevation, rerun with --seccomp-bpf=off to allow it", target))
		return
	}
	s.emitWarning(pid, fmt.Sprintf("%s is setuid/setgid; tracing across the privilege change is best effort", target))
}

// handleExecSucceeded services PTRACE_EVENT_EXEC: the authoritative success
// notification of an exec attempt.
func (s *Session) handleExecSucceeded(p *Process, pid int) {
	// When a non-leader thread execs, every other thread dies and the
	// execing thread assumes the leader's pid. The event is reported
	// against the leader; the old tid is in the event message.
	if oldTid, err := unix.PtraceGetEventMsg(pid); err == nil && int(oldTid) != pid {
		if oldP, ok := s.platform.procs.Lookup(int(oldTid)); ok {
			if p.pending == nil {
				p.pending = oldP.pending
			}
			// The thread morphed into the leader; no exit event for it.
			s.platform.procs.Exit(int(oldTid), 0)
		}
	}

	pend := p.pending
	p.pending = nil
	if pend == nil {
		// Entry was never captured (stop raced with attach); reconstruct
		// what /proc still offers and mark the call-time fields missing.
		pend = &pendingExec{
			unavailable: []string{"filename", "argv", "env", "fds"},
		}
	}

	s.finishExec(p, pid, pend, true, 0)

	// A syscall-exit stop for the exec is still due; swallow it. The exit
	// side is forced in case this pid inherited the exec from a thread
	// whose syscall state died with it.
	p.execDone = true
	p.insyscall = true
	s.flushQueuedSignals(pid, pend)
	unix.PtraceSyscall(pid, 0)
}

// handleExecExit services the syscall-exit stop of an exec attempt. Reaching
// it with a pending entry means the exec failed (success is announced by
// PTRACE_EVENT_EXEC before this stop); without one it is the trailing stop
// after a success, already handled.
func (s *Session) handleExecExit(p *Process, pid int, regs *unix.PtraceRegs) {
	if p.execDone {
		p.execDone = false
		s.resume(p, pid, 0)
		return
	}

	pend := p.pending
	p.pending = nil
	if pend == nil {
		s.resume(p, pid, 0)
		return
	}

	ret := sysRet(regs)
	if ret >= 0 {
		// An exec that returned success without PTRACE_EVENT_EXEC would be
		// a protocol violation; report it as a success all the same.
		s.finishExec(p, pid, pend, true, 0)
	} else {
		s.finishExec(p, pid, pend, false, syscall.Errno(-ret))
	}
	s.flushQueuedSignals(pid, pend)
	s.resume(p, pid, 0)
}

// finishExec builds and emits the ExecEvent for a completed attempt and, on
// success, rolls the process baselines forward per POSIX exec semantics.
func (s *Session) finishExec(p *Process, pid int, pend *pendingExec, success bool, errno syscall.Errno) {
	ev := &event.Exec{
		Filename:     pend.filename,
		Interpreters: pend.interpreters,
		Argv:         pend.argv,
		Env:          pend.envp,
		Cwd:          pend.cwd,
		FDs:          pend.fds,
		ParentChain:  p.ParentChain(),
		Success:      success,
		Unavailable:  pend.unavailable,
	}

	category := event.CategoryExecFailure
	if success {
		category = event.CategoryExecSuccess

		// Exec can change comm and cwd; re-read both.
		post := s.platform.reader.Read(pid)
		if post.CommErr == nil {
			p.Comm = post.Comm
			ev.Comm = post.Comm
		}
		if post.CwdErr == nil {
			p.Cwd = post.Cwd
		}

		newEnv := pend.envp
		if newEnv == nil && post.EnvErr == nil {
			newEnv = post.Env
		}
		diff := diffEnv(p.EnvBaseline, newEnv)
		ev.EnvDiff = &diff

		if pend.euid >= 0 {
			if euid, err := s.platform.reader.EUID(pid); err == nil && euid != pend.euid {
				s.emitWarning(pid, fmt.Sprintf("credentials changed across exec (euid %d -> %d), trace visibility may degrade", pend.euid, euid))
			}
		}

		postFDs := post.FDs
		if post.FDsErr != nil {
			postFDs = survivingFDs(pend.fds)
		}
		fdDiff := diffFDs(pend.fds, postFDs)
		ev.FDDiff = &fdDiff

		p.EnvBaseline = newEnv
		p.FDBaseline = postFDs
	} else {
		ev.Errno = unix.ErrnoName(errno)
	}

	s.dispatcher.Emit(event.Event{
		Category: category,
		Pid:      pid,
		Comm:     p.Comm,
		Exec:     ev,
	})
}

// flushQueuedSignals re-delivers signals that arrived during the exec
// window, in arrival order.
func (s *Session) flushQueuedSignals(pid int, pend *pendingExec) {
	for _, sig := range pend.queued {
		unix.Kill(pid, sig)
	}
}

// resume lets a tracee run again, optionally delivering a signal. With the
// seccomp filter active the tracee runs freely until the next filter trap;
// in fallback mode it runs to the next syscall boundary.
func (s *Session) resume(p *Process, pid, sig int) {
	var err error
	if s.seccompActive {
		err = unix.PtraceCont(pid, sig)
	} else {
		err = unix.PtraceSyscall(pid, sig)
	}
	if err != nil && err != unix.ESRCH {
		log.Debug("resume failed", "pid", pid, "error", err)
	}
}

func (s *Session) emitWarning(pid int, msg string) {
	s.dispatcher.Emit(event.Event{
		Category: event.CategoryWarning,
		Pid:      pid,
		Message:  msg,
	})
}

func (s *Session) emitError(pid int, msg string) {
	s.dispatcher.Emit(event.Event{
		Category: event.CategoryError,
		Pid:      pid,
		Message:  msg,
	})
}
