//go:build linux && arm64

package tracer

import "golang.org/x/sys/unix"

// On arm64 the syscall number lives in x8 and arguments in x0..x5. x8 is
// still intact at syscall stops, so no separate NT_ARM_SYSTEM_CALL read is
// needed for our purposes.

func sysno(regs *unix.PtraceRegs) uint64 {
	return regs.Regs[8]
}

func sysArg(regs *unix.PtraceRegs, i int) uint64 {
	return regs.Regs[i]
}

func sysRet(regs *unix.PtraceRegs) int64 {
	return int64(regs.Regs[0])
}
