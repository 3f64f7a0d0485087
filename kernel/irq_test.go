package kernel

import (
	"errors"
	"testing"

	"ember/kernel/arch"
)

func TestIRQAddRejectsBadVector(t *testing.T) {
	var tbl IRQTable
	h := HandlerFunc(func(int) bool { return true })
	if err := tbl.Add(-1, h); !errors.Is(err, ErrBadVector) {
		t.Fatalf("expected ErrBadVector, got %v", err)
	}
	if err := tbl.Add(arch.MaxVectors, h); !errors.Is(err, ErrBadVector) {
		t.Fatalf("expected ErrBadVector, got %v", err)
	}
}

func TestIRQSlotsPerVector(t *testing.T) {
	var tbl IRQTable
	h := HandlerFunc(func(int) bool { return false })
	for i := 0; i < handlersPerVector; i++ {
		if err := tbl.Add(5, h); err != nil {
			t.Fatalf("Add %d: %v", i, err)
		}
	}
	if err := tbl.Add(5, h); !errors.Is(err, ErrNoHandlerSlot) {
		t.Fatalf("expected ErrNoHandlerSlot, got %v", err)
	}
}

func TestIRQDispatchStopsAtFirstHandled(t *testing.T) {
	var tbl IRQTable
	var order []string
	_ = tbl.Add(3, HandlerFunc(func(int) bool { order = append(order, "a"); return false }))
	_ = tbl.Add(3, HandlerFunc(func(int) bool { order = append(order, "b"); return true }))
	_ = tbl.Add(3, HandlerFunc(func(int) bool { order = append(order, "c"); return true }))

	tbl.Dispatch(3)
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("expected [a b], got %v", order)
	}
	if tbl.Count(3) != 1 || tbl.Spurious() != 0 {
		t.Fatalf("expected count 1 and no spurious, got %d/%d", tbl.Count(3), tbl.Spurious())
	}

	tbl.Dispatch(7)
	tbl.Dispatch(99)
	if tbl.Spurious() != 2 {
		t.Fatalf("expected 2 spurious interrupts, got %d", tbl.Spurious())
	}
}

func TestAttachTimerDrivesTick(t *testing.T) {
	s, _ := newRecorded(t)
	ids := spawnN(t, s, 2)
	s.Queue(ids[0])
	s.Queue(ids[1])
	s.Enter()

	var tbl IRQTable
	if err := s.AttachTimer(&tbl); err != nil {
		t.Fatalf("AttachTimer: %v", err)
	}
	tbl.Dispatch(arch.VectorTimer)
	if s.Current() != ids[1] {
		t.Fatalf("expected timer to preempt into %d, got %d", ids[1], s.Current())
	}
	if s.Stats().Ticks != 1 {
		t.Fatalf("expected 1 tick, got %d", s.Stats().Ticks)
	}
}
