//go:build !tinygo && unix

package hal

import (
	"fmt"
	"sync"
	"unsafe"

	"ember/kernel/arch"

	"golang.org/x/sys/unix"
)

// mmapStacks maps every stack separately with an inaccessible guard page
// below it, so running off the base faults instead of corrupting a
// neighbour.
type mmapStacks struct {
	mu    sync.Mutex
	limit int
	used  int
}

func newHostStacks() arch.StackAllocator {
	return &mmapStacks{}
}

// NewGuardedStacks returns an allocator of guarded stacks capped at limit
// bytes, guard pages excluded. Zero means unlimited.
func NewGuardedStacks(limit int) arch.StackAllocator {
	return &mmapStacks{limit: limit}
}

func (m *mmapStacks) AllocStack(size int) (arch.Stack, error) {
	if size <= 0 || size%8 != 0 {
		return arch.Stack{}, fmt.Errorf("stack size %d: %w", size, arch.ErrNoStackMemory)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.limit > 0 && m.used+size > m.limit {
		return arch.Stack{}, fmt.Errorf("stack size %d (used %d of %d): %w", size, m.used, m.limit, arch.ErrNoStackMemory)
	}

	pages := (size + arch.PageSize - 1) / arch.PageSize
	mem, err := unix.Mmap(-1, 0, (pages+1)*arch.PageSize,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return arch.Stack{}, fmt.Errorf("mmap stack: %v: %w", err, arch.ErrNoStackMemory)
	}
	if err := unix.Mprotect(mem[:arch.PageSize], unix.PROT_NONE); err != nil {
		_ = unix.Munmap(mem)
		return arch.Stack{}, fmt.Errorf("guard page: %v: %w", err, arch.ErrNoStackMemory)
	}
	m.used += size

	// The usable region ends at the mapping end so the top is page aligned.
	usable := mem[len(mem)-size:]
	return arch.Stack{
		Mem:     usable,
		Base:    uintptr(unsafe.Pointer(&usable[0])),
		Guarded: size%arch.PageSize == 0,
	}, nil
}
