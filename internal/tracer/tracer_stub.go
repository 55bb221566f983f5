//go:build !linux

package tracer

import (
	"context"
	"errors"
	"runtime"
)

type platformState struct{}

func (s *Session) prepare() error {
	return errors.New("exec tracing requires Linux ptrace, unsupported on " + runtime.GOOS)
}

func (s *Session) run(ctx context.Context) (ExitStatus, error) {
	return ExitStatus{}, errors.New("exec tracing requires Linux ptrace, unsupported on " + runtime.GOOS)
}
