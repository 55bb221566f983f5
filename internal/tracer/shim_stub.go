//go:build !linux

package tracer

import (
	"errors"
	"runtime"
)

// RunShim is Linux-only; on other platforms the helper command refuses to run.
func RunShim(command []string, seccomp bool) error {
	return errors.New("exec tracing requires Linux ptrace, unsupported on " + runtime.GOOS)
}
