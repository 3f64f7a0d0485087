//go:build !tinygo && !unix

package hal

import "ember/kernel/arch"

func newHostStacks() arch.StackAllocator {
	return &arch.HeapStacks{}
}

// NewGuardedStacks falls back to heap stacks; this platform has no guard
// pages.
func NewGuardedStacks(limit int) arch.StackAllocator {
	return &arch.HeapStacks{Limit: limit}
}
