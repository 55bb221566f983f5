//go:build linux

package tracer

import (
	"fmt"

	seccomp "github.com/elastic/go-seccomp-bpf"
	"golang.org/x/net/bpf"
)

// execTracePolicy is the seccomp policy behind the optimization filter: trap
// only the exec family, let everything else run without a stop. Trapping two
// syscalls instead of all of them is what collapses the stop rate of
// trace-by-syscall to one stop per exec.
func execTracePolicy() seccomp.Policy {
	return seccomp.Policy{
		DefaultAction: seccomp.ActionAllow,
		Syscalls: []seccomp.SyscallGroup{
			{
				Action: seccomp.ActionTrace,
				Names:  []string{"execve", "execveat"},
			},
		},
	}
}

// buildFilter decides whether the optimization filter applies and proves the
// policy assembles for the running architecture. It returns (false, nil) for
// a clean fallback to full syscall-stop tracing. Compilation is pure; the
// filter is installed by the shim inside the tracee, before the first exec.
func buildFilter(mode SeccompMode, setuid bool) (bool, error) {
	switch mode {
	case SeccompOff:
		return false, nil
	case SeccompOn, SeccompAuto:
	default:
		return false, fmt.Errorf("invalid seccomp-bpf mode %q", mode)
	}

	if setuid {
		// no_new_privs would silently strip the target's setuid elevation,
		// so privilege-switch sessions always trace the slow way.
		if mode == SeccompOn {
			return false, fmt.Errorf("seccomp-bpf cannot be used when switching user")
		}
		return false, nil
	}

	if !seccomp.Supported() {
		if mode == SeccompOn {
			return false, fmt.Errorf("seccomp-bpf is not supported by this kernel")
		}
		return false, nil
	}

	policy := execTracePolicy()
	insns, err := policy.Assemble()
	if err != nil {
		if mode == SeccompOn {
			return false, fmt.Errorf("assemble seccomp-bpf policy: %w", err)
		}
		return false, nil
	}
	if _, err := bpf.Assemble(insns); err != nil {
		if mode == SeccompOn {
			return false, fmt.Errorf("assemble seccomp-bpf program: %w", err)
		}
		return false, nil
	}
	return true, nil
}

// LoadExecFilter installs the exec trace filter into the calling process.
// Called by the shim between fork and exec of the target command; every
// process in the subtree inherits the filter.
func LoadExecFilter() error {
	return seccomp.LoadFilter(seccomp.Filter{
		NoNewPrivs: true,
		Flag:       seccomp.FilterFlagTSync,
		Policy:     execTracePolicy(),
	})
}
