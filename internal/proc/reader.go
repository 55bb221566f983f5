// Package proc reads tracee state out of the proc filesystem. Every field is
// best-effort: a tracee can exit between any two reads, so each field carries
// its own error instead of failing the whole snapshot.
package proc

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/prometheus/procfs"

	"github.com/orhun/tracexec/internal/event"
)

// Reader fetches process state from a proc mount point.
type Reader struct {
	root string
	fs   procfs.FS
}

// NewReader returns a Reader for the default /proc mount.
func NewReader() (*Reader, error) {
	return NewReaderAt(procfs.DefaultMountPoint)
}

// NewReaderAt returns a Reader rooted at the given mount point. Used by tests
// with a synthetic proc tree.
func NewReaderAt(root string) (*Reader, error) {
	fs, err := procfs.NewFS(root)
	if err != nil {
		return nil, fmt.Errorf("open proc mount %s: %w", root, err)
	}
	return &Reader{root: root, fs: fs}, nil
}

// Snapshot is a best-effort view of one process. A nil field error means the
// value is valid; otherwise the field is unavailable and holds its zero value.
type Snapshot struct {
	Argv    []string
	ArgvErr error

	Env    []string
	EnvErr error

	Cwd    string
	CwdErr error

	Comm    string
	CommErr error

	FDs    []event.FD
	FDsErr error
}

// Unavailable names the snapshot fields that could not be read.
func (s Snapshot) Unavailable() []string {
	var missing []string
	if s.ArgvErr != nil {
		missing = append(missing, "argv")
	}
	if s.EnvErr != nil {
		missing = append(missing, "env")
	}
	if s.CwdErr != nil {
		missing = append(missing, "cwd")
	}
	if s.CommErr != nil {
		missing = append(missing, "comm")
	}
	if s.FDsErr != nil {
		missing = append(missing, "fds")
	}
	return missing
}

// Read takes a full snapshot of the process. Individual fields fail
// independently; the caller decides what to do with partial data.
func (r *Reader) Read(pid int) Snapshot {
	var s Snapshot
	p, err := r.fs.Proc(pid)
	if err != nil {
		s.ArgvErr, s.EnvErr, s.CwdErr, s.CommErr, s.FDsErr = err, err, err, err, err
		return s
	}

	s.Argv, s.ArgvErr = retry(p.CmdLine)
	s.Env, s.EnvErr = retry(p.Environ)
	s.Cwd, s.CwdErr = retry(p.Cwd)
	s.Comm, s.CommErr = retry(p.Comm)
	s.FDs, s.FDsErr = retry(func() ([]event.FD, error) { return r.readFDs(p, pid) })
	return s
}

// Comm reads just the comm of a process.
func (r *Reader) Comm(pid int) (string, error) {
	p, err := r.fs.Proc(pid)
	if err != nil {
		return "", err
	}
	return retry(p.Comm)
}

// Cwd reads just the working directory of a process.
func (r *Reader) Cwd(pid int) (string, error) {
	p, err := r.fs.Proc(pid)
	if err != nil {
		return "", err
	}
	return retry(p.Cwd)
}

// TGID returns the thread-group id of a pid. A pid whose TGID differs from
// itself is a non-leader thread.
func (r *Reader) TGID(pid int) (int, error) {
	p, err := r.fs.Proc(pid)
	if err != nil {
		return 0, err
	}
	st, err := p.NewStatus()
	if err != nil {
		return 0, err
	}
	return st.TGID, nil
}

// EUID returns the effective uid of a process. Used to spot credential
// changes across an exec.
func (r *Reader) EUID(pid int) (int, error) {
	p, err := r.fs.Proc(pid)
	if err != nil {
		return 0, err
	}
	st, err := p.NewStatus()
	if err != nil {
		return 0, err
	}
	return int(st.UIDs[1]), nil
}

// FDs reads just the descriptor table of a process.
func (r *Reader) FDs(pid int) ([]event.FD, error) {
	p, err := r.fs.Proc(pid)
	if err != nil {
		return nil, err
	}
	return retry(func() ([]event.FD, error) { return r.readFDs(p, pid) })
}

// retry runs a proc read, retrying once on failure. Reads race with tracee
// exit; a second attempt settles whether the failure is persistent.
func retry[T any](read func() (T, error)) (T, error) {
	v, err := read()
	if err == nil {
		return v, nil
	}
	return read()
}

// O_CLOEXEC, as it appears in the octal flags line of /proc/pid/fdinfo/N.
const cloexecFlag = 0o2000000

func (r *Reader) readFDs(p procfs.Proc, pid int) ([]event.FD, error) {
	infos, err := p.FileDescriptorsInfo()
	if err != nil {
		return nil, err
	}

	fds := make([]event.FD, 0, len(infos))
	for _, info := range infos {
		num, err := strconv.Atoi(info.FD)
		if err != nil {
			continue
		}
		fd := event.FD{Num: num}

		if flags, err := strconv.ParseUint(info.Flags, 8, 64); err == nil {
			fd.CloseOnExec = flags&cloexecFlag != 0
		}

		target, err := os.Readlink(filepath.Join(r.root, strconv.Itoa(pid), "fd", info.FD))
		if err != nil {
			// The descriptor closed between listing and readlink.
			continue
		}
		fd.Target = target
		fd.Kind = classifyFD(target)
		fds = append(fds, fd)
	}
	return fds, nil
}

// classifyFD maps a /proc/pid/fd link target to a descriptor kind. Non-file
// descriptors resolve to descriptive labels like "pipe:[123]" rather than
// paths.
func classifyFD(target string) event.FDKind {
	switch {
	case strings.HasPrefix(target, "pipe:"):
		return event.FDPipe
	case strings.HasPrefix(target, "socket:"):
		return event.FDSocket
	case strings.HasPrefix(target, "/"):
		return event.FDFile
	default:
		return event.FDOther
	}
}
