//go:build linux && amd64

package tracer

import "golang.org/x/sys/unix"

func sysno(regs *unix.PtraceRegs) uint64 {
	return regs.Orig_rax
}

func sysArg(regs *unix.PtraceRegs, i int) uint64 {
	switch i {
	case 0:
		return regs.Rdi
	case 1:
		return regs.Rsi
	case 2:
		return regs.Rdx
	case 3:
		return regs.R10
	case 4:
		return regs.R8
	default:
		return regs.R9
	}
}

func sysRet(regs *unix.PtraceRegs) int64 {
	return int64(regs.Rax)
}
