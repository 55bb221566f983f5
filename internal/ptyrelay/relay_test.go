//go:build !windows

package ptyrelay

import (
	"os"
	"testing"
	"time"

	"github.com/creack/pty"
)

func TestRelayCopiesOutput(t *testing.T) {
	ptm, pts, err := pty.Open()
	if err != nil {
		t.Skipf("no pty available: %v", err)
	}
	defer ptm.Close()

	inR, inW, err := os.Pipe()
	if err != nil {
		t.Fatalf("open input pipe: %v", err)
	}
	defer inR.Close()
	defer inW.Close()

	outM, outS, err := pty.Open()
	if err != nil {
		t.Fatalf("open output pty: %v", err)
	}
	defer outM.Close()

	r := &Relay{ptm: ptm, in: inR, out: outS, done: make(chan struct{})}
	if err := r.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer r.Stop()

	// Tracee-side writes must surface on the relay output.
	if _, err := pts.WriteString("hello from tracee"); err != nil {
		t.Fatalf("write to pty slave: %v", err)
	}

	buf := make([]byte, 64)
	outM.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := outM.Read(buf)
	if err != nil {
		t.Fatalf("read relay output: %v", err)
	}
	if got := string(buf[:n]); got != "hello from tracee" {
		t.Errorf("relay output = %q", got)
	}

	pts.Close()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Error("relay did not finish after tracee closed its terminal")
	}
}

func TestRelayStopWithoutRawMode(t *testing.T) {
	ptm, pts, err := pty.Open()
	if err != nil {
		t.Skipf("no pty available: %v", err)
	}
	defer ptm.Close()
	defer pts.Close()

	r := New(ptm)
	r.Stop() // never started; must not panic
}
