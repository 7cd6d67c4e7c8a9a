package jit

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// jitcall calls the machine code at code with rbx holding state. state must
// stay on the heap: native code keeps pointers into it across helper calls.
func jitcall(code, state unsafe.Pointer)

// mapExecutable copies code into a fresh anonymous mapping and flips it from
// writable to executable.
func mapExecutable(code []byte) ([]byte, error) {
	mem, err := unix.Mmap(-1, 0, len(code), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("failed to map code: %w", err)
	}

	copy(mem, code)

	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		_ = unix.Munmap(mem)
		return nil, fmt.Errorf("failed to make code executable: %w", err)
	}

	return mem, nil
}

func unmapExecutable(code []byte) error {
	if err := unix.Munmap(code); err != nil {
		return fmt.Errorf("failed to unmap code: %w", err)
	}

	return nil
}
