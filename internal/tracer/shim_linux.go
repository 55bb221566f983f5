//go:build linux

package tracer

import (
	"errors"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"
)

// RunShim is the body of the hidden helper command re-executed as the root
// tracee. It installs the seccomp filter when asked, then replaces itself
// with the target command, so the target's exec is the first exec the
// supervisor observes. It returns only on error.
func RunShim(command []string, seccomp bool) error {
	if len(command) == 0 {
		return errors.New("no command to exec")
	}
	if seccomp {
		if err := LoadExecFilter(); err != nil {
			return err
		}
	}
	path, err := exec.LookPath(command[0])
	if err != nil {
		// Let the exec syscall report the failure so the supervisor can
		// observe it as an exec-failure event.
		path = command[0]
	}
	return unix.Exec(path, command, os.Environ())
}
