//go:build linux

package tracer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

const (
	pageSize = 4096
	// maxTraceeString bounds a single argv/envp string read from tracee
	// memory.
	maxTraceeString = 1 << 20
	// maxTraceeArray bounds how many pointers an argv/envp array may hold.
	maxTraceeArray = 1 << 14
)

// readTraceeMem fills buf from the tracee's address space. process_vm_readv
// is the fast path; ptrace peeks are the fallback for kernels or security
// policies that refuse cross-memory attach.
func readTraceeMem(pid int, addr uintptr, buf []byte) error {
	local := []unix.Iovec{{Base: &buf[0]}}
	local[0].SetLen(len(buf))
	remote := []unix.RemoteIovec{{Base: addr, Len: len(buf)}}

	n, err := unix.ProcessVMReadv(pid, local, remote, 0)
	if err == nil && n == len(buf) {
		return nil
	}
	if err != nil && !errors.Is(err, unix.ENOSYS) && !errors.Is(err, unix.EPERM) {
		return err
	}

	if _, err := unix.PtracePeekData(pid, addr, buf); err != nil {
		return err
	}
	return nil
}

// readTraceeString reads a NUL-terminated string starting at addr. Reads stop
// at page boundaries so a string ending near unmapped memory does not fault.
func readTraceeString(pid int, addr uintptr) (string, error) {
	var out []byte
	for len(out) < maxTraceeString {
		chunk := pageSize - int(addr%pageSize)
		buf := make([]byte, chunk)
		if err := readTraceeMem(pid, addr, buf); err != nil {
			return "", err
		}
		if i := bytes.IndexByte(buf, 0); i >= 0 {
			return string(append(out, buf[:i]...)), nil
		}
		out = append(out, buf...)
		addr += uintptr(chunk)
	}
	return "", fmt.Errorf("tracee string at %#x exceeds %d bytes", addr, maxTraceeString)
}

// readTraceeStringArray reads a NULL-terminated array of string pointers
// (argv or envp as passed to execve) from the tracee.
func readTraceeStringArray(pid int, addr uintptr) ([]string, error) {
	var out []string
	ptr := make([]byte, 8)
	for i := 0; i < maxTraceeArray; i++ {
		if err := readTraceeMem(pid, addr+uintptr(i*8), ptr); err != nil {
			return out, err
		}
		p := binary.NativeEndian.Uint64(ptr)
		if p == 0 {
			return out, nil
		}
		s, err := readTraceeString(pid, uintptr(p))
		if err != nil {
			return out, err
		}
		out = append(out, s)
	}
	return out, fmt.Errorf("tracee array at %#x exceeds %d entries", addr, maxTraceeArray)
}
