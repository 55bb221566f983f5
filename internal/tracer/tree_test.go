package tracer

import (
	"testing"

	"github.com/orhun/tracexec/internal/event"
)

func TestTreeAttachAssignsGenerations(t *testing.T) {
	tr := newTree()

	a := tr.Attach(100)
	tr.Exit(100, 0)
	b := tr.Attach(100) // pid reuse

	if a.Gen == b.Gen {
		t.Errorf("reused pid got the same generation %d", a.Gen)
	}
	if !a.Exited {
		t.Error("first record not marked exited")
	}
	if b.Exited {
		t.Error("fresh record marked exited")
	}
}

func TestTreeForkCopiesProcessBaselines(t *testing.T) {
	tr := newTree()
	parent := tr.Attach(100)
	parent.EnvBaseline = []string{"A=1"}
	parent.FDBaseline = []event.FD{{Num: 0, Kind: event.FDFile}}

	child := tr.Fork(100, 101, ForkProcess)
	child.EnvBaseline[0] = "A=2"

	if parent.EnvBaseline[0] != "A=1" {
		t.Error("process fork shares the parent's env baseline, want a copy")
	}
	if !child.Leader {
		t.Error("forked process not a thread-group leader")
	}
}

func TestTreeForkSharesThreadBaselines(t *testing.T) {
	tr := newTree()
	parent := tr.Attach(100)
	parent.EnvBaseline = []string{"A=1"}

	child := tr.Fork(100, 101, ForkThread)
	child.EnvBaseline[0] = "A=2"

	if parent.EnvBaseline[0] != "A=2" {
		t.Error("thread clone copied the env baseline, want shared reference")
	}
	if child.Leader {
		t.Error("cloned thread marked as thread-group leader")
	}
}

func TestTreeForkMergesEarlyChild(t *testing.T) {
	tr := newTree()
	parent := tr.Attach(100)
	parent.Comm = "sh"

	// Child's first stop raced ahead of the parent's fork event.
	early := tr.Attach(101)
	merged := tr.Fork(100, 101, ForkProcess)

	if merged != early {
		t.Fatal("fork replaced the early-attached record instead of merging it")
	}
	if merged.Parent != parent {
		t.Error("merged record has no parent link")
	}
	if merged.Comm != "sh" {
		t.Errorf("merged record comm = %q, want inherited %q", merged.Comm, "sh")
	}
}

func TestTreeForkWithoutParent(t *testing.T) {
	tr := newTree()
	child := tr.Fork(999, 101, ForkProcess)
	if child.Parent != nil {
		t.Error("orphan fork got a parent link")
	}
	if _, ok := tr.Lookup(101); !ok {
		t.Error("orphan child not live")
	}
}

func TestParentChainSurvivesExit(t *testing.T) {
	tr := newTree()
	root := tr.Attach(100)
	root.Comm = "root"
	mid := tr.Fork(100, 101, ForkProcess)
	mid.Comm = "mid"
	leaf := tr.Fork(101, 102, ForkProcess)

	// Ancestors exit; the chain must still report them.
	tr.Exit(101, 0)
	tr.Exit(100, 0)

	chain := leaf.ParentChain()
	if len(chain) != 2 {
		t.Fatalf("chain length = %d, want 2", len(chain))
	}
	if chain[0].Pid != 101 || chain[0].Comm != "mid" {
		t.Errorf("chain[0] = %+v, want pid 101 comm mid", chain[0])
	}
	if chain[1].Pid != 100 || chain[1].Comm != "root" {
		t.Errorf("chain[1] = %+v, want pid 100 comm root", chain[1])
	}
}

func TestTreeExitUnknownPid(t *testing.T) {
	tr := newTree()
	if _, ok := tr.Exit(12345, 0); ok {
		t.Error("exit of unknown pid reported success")
	}
}

func TestTreeSize(t *testing.T) {
	tr := newTree()
	tr.Attach(1)
	tr.Fork(1, 2, ForkProcess)
	tr.Fork(1, 3, ForkThread)
	if got := tr.Size(); got != 3 {
		t.Fatalf("size = %d, want 3", got)
	}
	tr.Exit(2, 0)
	if got := tr.Size(); got != 2 {
		t.Fatalf("size after exit = %d, want 2", got)
	}
}
