//go:build !windows

// Package ptyrelay connects the user's terminal to a traced session's
// pseudo-terminal: raw mode on the real terminal, bidirectional byte copy,
// and window-size propagation.
package ptyrelay

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/term"
)

// Relay pumps bytes between the user's terminal and the pty master of a
// traced session. Create with New, then Start, Wait, Stop.
type Relay struct {
	ptm *os.File
	in  *os.File
	out *os.File

	rawState *term.State
	winch    chan os.Signal
	done     chan struct{}
}

// New returns a relay between the process's own stdio and the given pty
// master.
func New(ptm *os.File) *Relay {
	return &Relay{
		ptm:  ptm,
		in:   os.Stdin,
		out:  os.Stdout,
		done: make(chan struct{}),
	}
}

// Start switches the terminal to raw mode (when stdin is one), begins the
// copy loops, and starts tracking window resizes.
func (r *Relay) Start() error {
	if term.IsTerminal(int(r.in.Fd())) {
		state, err := term.MakeRaw(int(r.in.Fd()))
		if err != nil {
			return fmt.Errorf("enable raw mode: %w", err)
		}
		r.rawState = state

		_ = pty.InheritSize(r.in, r.ptm)
		r.winch = make(chan os.Signal, 1)
		signal.Notify(r.winch, syscall.SIGWINCH)
		go r.watchResize()
	}

	// The stdin copy has no clean shutdown: it stays blocked in read until
	// the process exits. The output copy ends when the tracee side closes.
	go func() {
		_, _ = io.Copy(r.ptm, r.in)
	}()
	go func() {
		_, _ = io.Copy(r.out, r.ptm)
		close(r.done)
	}()
	return nil
}

func (r *Relay) watchResize() {
	for range r.winch {
		_ = pty.InheritSize(r.in, r.ptm)
	}
}

// Wait blocks until the traced session closes its side of the terminal.
func (r *Relay) Wait() {
	<-r.done
}

// Stop restores the terminal state. Safe to call whether or not raw mode was
// entered.
func (r *Relay) Stop() {
	if r.winch != nil {
		signal.Stop(r.winch)
		close(r.winch)
		r.winch = nil
	}
	if r.rawState != nil {
		_ = term.Restore(int(r.in.Fd()), r.rawState)
		r.rawState = nil
	}
}
