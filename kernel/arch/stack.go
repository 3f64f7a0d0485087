package arch

import (
	"errors"
	"fmt"
	"unsafe"
)

// Default stack sizes, two pages each.
const (
	DefaultKernelStackSize = 2 * PageSize
	DefaultUserStackSize   = 2 * PageSize
	PageSize               = 0x1000
)

// MinKernelStackSize fits the first-entry frame plus one saved register set.
const MinKernelStackSize = (frameWords + calleeSavedWords) * wordSize

var (
	// ErrNoStackMemory is returned by allocators that cannot satisfy a request.
	ErrNoStackMemory = errors.New("no stack memory")
	// ErrStackOverflow is the panic value of a frame push past the stack base.
	ErrStackOverflow = errors.New("stack overflow")
)

// Stack is a zeroed, exclusively owned stack region. Mem covers exactly
// [Base, Base+len(Mem)).
type Stack struct {
	Mem     []byte
	Base    uintptr
	Guarded bool
}

// Top returns the first address above the stack.
func (s Stack) Top() uintptr { return s.Base + uintptr(len(s.Mem)) }

// Size returns the usable size in bytes.
func (s Stack) Size() int { return len(s.Mem) }

// Contains reports whether addr is inside the stack or at its top.
func (s Stack) Contains(addr uintptr) bool {
	return addr >= s.Base && addr <= s.Top()
}

// StackAllocator hands out fixed-size zeroed stacks. There is no free path.
type StackAllocator interface {
	AllocStack(size int) (Stack, error)
}

// HeapStacks allocates stacks from the Go heap without guard pages.
type HeapStacks struct {
	// Limit caps the total bytes handed out; zero means unlimited.
	Limit int
	used  int
}

func (h *HeapStacks) AllocStack(size int) (Stack, error) {
	if size <= 0 || size%wordSize != 0 {
		return Stack{}, fmt.Errorf("stack size %d: %w", size, ErrNoStackMemory)
	}
	if h.Limit > 0 && h.used+size > h.Limit {
		return Stack{}, fmt.Errorf("stack size %d (used %d of %d): %w", size, h.used, h.Limit, ErrNoStackMemory)
	}
	h.used += size
	mem := make([]byte, size)
	return Stack{Mem: mem, Base: uintptr(unsafe.Pointer(&mem[0]))}, nil
}
