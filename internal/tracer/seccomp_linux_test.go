//go:build linux

package tracer

import (
	"testing"

	"golang.org/x/net/bpf"
)

func TestBuildFilterOff(t *testing.T) {
	active, err := buildFilter(SeccompOff, false)
	if err != nil {
		t.Fatalf("buildFilter(off) error: %v", err)
	}
	if active {
		t.Error("filter active despite mode off")
	}
}

func TestBuildFilterSetuidSession(t *testing.T) {
	active, err := buildFilter(SeccompAuto, true)
	if err != nil {
		t.Fatalf("buildFilter(auto, setuid) error: %v", err)
	}
	if active {
		t.Error("filter active for a user-switching session")
	}

	if _, err := buildFilter(SeccompOn, true); err == nil {
		t.Error("buildFilter(on, setuid) accepted, want error")
	}
}

func TestBuildFilterInvalidMode(t *testing.T) {
	if _, err := buildFilter(SeccompMode("bogus"), false); err == nil {
		t.Error("invalid mode accepted")
	}
}

func TestExecTracePolicyAssembles(t *testing.T) {
	policy := execTracePolicy()
	insns, err := policy.Assemble()
	if err != nil {
		t.Fatalf("policy does not assemble: %v", err)
	}
	if len(insns) == 0 {
		t.Fatal("policy assembled to zero instructions")
	}
	raw, err := bpf.Assemble(insns)
	if err != nil {
		t.Fatalf("bpf program does not assemble: %v", err)
	}
	if len(raw) != len(insns) {
		t.Errorf("raw program length %d != instruction count %d", len(raw), len(insns))
	}
}
