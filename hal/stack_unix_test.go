//go:build !tinygo && unix

package hal

import (
	"errors"
	"testing"

	"ember/kernel/arch"
)

func TestGuardedStacks(t *testing.T) {
	a := NewGuardedStacks(0)
	s, err := a.AllocStack(2 * arch.PageSize)
	if err != nil {
		t.Fatalf("AllocStack: %v", err)
	}
	if !s.Guarded {
		t.Fatal("expected guarded stack")
	}
	if s.Size() != 2*arch.PageSize || s.Top()%arch.PageSize != 0 {
		t.Fatalf("expected page aligned stack of %d bytes, got %d at top %#x", 2*arch.PageSize, s.Size(), s.Top())
	}
	for i, b := range s.Mem {
		if b != 0 {
			t.Fatalf("expected zeroed stack, byte %d is %#x", i, b)
		}
	}
}

func TestGuardedStacksLimit(t *testing.T) {
	a := NewGuardedStacks(arch.PageSize)
	if _, err := a.AllocStack(arch.PageSize); err != nil {
		t.Fatalf("AllocStack: %v", err)
	}
	if _, err := a.AllocStack(arch.PageSize); !errors.Is(err, arch.ErrNoStackMemory) {
		t.Fatalf("expected ErrNoStackMemory, got %v", err)
	}
}

func TestGuardedStacksRunContext(t *testing.T) {
	c, err := arch.NewContext(NewGuardedStacks(0), arch.ContextConfig{}, func(uintptr) {}, 0)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	if !c.KernelStack().Guarded || !c.SavedSPValid() {
		t.Fatal("expected frame built on a guarded stack")
	}
}
