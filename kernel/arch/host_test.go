//go:build !tinygo

package arch

import (
	"errors"
	"testing"
	"time"
)

func waitDone(t *testing.T, h *Host) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		h.Stop()
		t.Fatal("timed out waiting for machine power off")
	}
}

func TestHostFirstEntry(t *testing.T) {
	h := NewHost()
	var stacks HeapStacks

	type seen struct {
		regs    CalleeSaved
		frame   TrapFrame
		arg     uintptr
		rsp0    uintptr
		enabled bool
	}
	got := make(chan seen, 1)
	entry := func(arg uintptr) {
		got <- seen{
			regs:    h.Registers(),
			frame:   h.EntryFrame(),
			arg:     arg,
			rsp0:    h.TSS().RSP0,
			enabled: h.Enabled(),
		}
		h.PowerOff()
	}
	c, err := NewContext(&stacks, ContextConfig{}, entry, 42)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}

	h.SwitchInitial(c)

	s := <-got
	if s.regs != (CalleeSaved{}) {
		t.Fatalf("expected zeroed registers on first entry, got %+v", s.regs)
	}
	if s.frame.RIP != uint64(c.EntryPC()) {
		t.Fatalf("expected entry at %#x, got %#x", c.EntryPC(), s.frame.RIP)
	}
	if s.arg != 42 {
		t.Fatalf("expected arg 42, got %d", s.arg)
	}
	if s.rsp0 != c.KernelStackTop() {
		t.Fatalf("expected TSS.RSP0 %#x, got %#x", c.KernelStackTop(), s.rsp0)
	}
	if !s.enabled {
		t.Fatal("expected interrupts enabled after iret")
	}
	if h.Fault() != nil {
		t.Fatalf("expected no fault, got %v", h.Fault())
	}
}

func TestHostSwitchInterleaves(t *testing.T) {
	h := NewHost()
	var stacks HeapStacks
	var a, b *Context
	var trace []byte
	var bValid bool

	entryA := func(uintptr) {
		for i := 0; i < 3; i++ {
			trace = append(trace, 'a')
			a.SwitchTo(h, b)
		}
		bValid = b.SavedSPValid()
		h.PowerOff()
	}
	entryB := func(uintptr) {
		for {
			trace = append(trace, 'b')
			b.SwitchTo(h, a)
		}
	}

	var err error
	if a, err = NewContext(&stacks, ContextConfig{}, entryA, 0); err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	if b, err = NewContext(&stacks, ContextConfig{}, entryB, 0); err != nil {
		t.Fatalf("NewContext: %v", err)
	}

	h.SwitchInitial(a)

	if string(trace) != "ababab" {
		t.Fatalf("expected ababab, got %q", trace)
	}
	if !bValid {
		t.Fatal("expected suspended context to keep its saved sp inside its kernel stack")
	}
	// One initial entry plus six switches.
	if got := h.Switches(); got != 7 {
		t.Fatalf("expected 7 transfers, got %d", got)
	}
}

func TestHostSwitchPreservesRegisters(t *testing.T) {
	h := NewHost()
	var stacks HeapStacks
	var a, b *Context
	var got CalleeSaved
	want := CalleeSaved{RBX: 0x11, RBP: 0x22, R12: 0x33, R13: 0x44, R14: 0x55, R15: 0x66}

	entryA := func(uintptr) {
		h.thread(a).regs = want
		a.SwitchTo(h, b)
		got = h.Registers()
		h.PowerOff()
	}
	entryB := func(uintptr) {
		b.SwitchTo(h, a)
	}

	a, _ = NewContext(&stacks, ContextConfig{}, entryA, 0)
	b, _ = NewContext(&stacks, ContextConfig{}, entryB, 0)
	h.SwitchInitial(a)

	if got != want {
		t.Fatalf("expected %+v after resume, got %+v", want, got)
	}
}

func TestHostInterruptDelivery(t *testing.T) {
	h := NewHost()
	var stacks HeapStacks
	var vectors []int
	var maskedEarly bool
	h.SetDispatch(func(v int) {
		vectors = append(vectors, v)
	})

	entry := func(uintptr) {
		h.Poll()
		f := h.Disable()
		h.Raise(VectorKeyboard)
		h.Poll()
		maskedEarly = len(vectors) == 1
		h.Restore(f)
		h.PowerOff()
	}
	c, _ := NewContext(&stacks, ContextConfig{}, entry, 0)

	// Raised while masked at reset; delivered after the first iret.
	h.Raise(VectorTimer)
	h.SwitchInitial(c)

	if !maskedEarly {
		t.Fatal("expected masked interrupt to stay pending")
	}
	if len(vectors) != 2 || vectors[0] != VectorTimer || vectors[1] != VectorKeyboard {
		t.Fatalf("expected [timer keyboard], got %v", vectors)
	}
	if h.Delivered() != 2 {
		t.Fatalf("expected 2 deliveries, got %d", h.Delivered())
	}
}

func TestHostHaltWakesOnInterrupt(t *testing.T) {
	h := NewHost()
	var stacks HeapStacks
	var woke int
	h.SetDispatch(func(int) { woke++ })

	entry := func(uintptr) {
		for woke < 3 {
			h.Halt()
		}
		h.PowerOff()
	}
	c, _ := NewContext(&stacks, ContextConfig{}, entry, 0)

	go func() {
		for i := 0; i < 3; i++ {
			time.Sleep(time.Millisecond)
			h.Raise(VectorTimer)
		}
	}()

	done := make(chan struct{})
	go func() {
		h.SwitchInitial(c)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		h.Stop()
		t.Fatal("timed out waiting for halted context")
	}
	if woke != 3 {
		t.Fatalf("expected 3 wakeups, got %d", woke)
	}
}

func TestHostEntryReturnIsFault(t *testing.T) {
	h := NewHost()
	var stacks HeapStacks
	c, _ := NewContext(&stacks, ContextConfig{}, func(uintptr) {}, 0)

	h.SwitchInitial(c)
	waitDone(t, h)

	err, ok := h.Fault().(error)
	if !ok || !errors.Is(err, ErrEntryReturned) {
		t.Fatalf("expected ErrEntryReturned, got %v", h.Fault())
	}
}

func TestHostPanicInContextIsFault(t *testing.T) {
	h := NewHost()
	var stacks HeapStacks
	c, _ := NewContext(&stacks, ContextConfig{}, func(uintptr) { panic("boom") }, 0)

	h.SwitchInitial(c)

	if h.Fault() != "boom" {
		t.Fatalf("expected fault boom, got %v", h.Fault())
	}
}

func TestHostPollAfterStopExits(t *testing.T) {
	h := NewHost()
	var stacks HeapStacks
	entry := func(uintptr) {
		h.Stop()
		for {
			h.Poll()
		}
	}
	c, _ := NewContext(&stacks, ContextConfig{}, entry, 0)

	done := make(chan struct{})
	go func() {
		h.SwitchInitial(c)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("expected the spinning context to exit after stop")
	}
	if h.Fault() != nil {
		t.Fatalf("expected no fault, got %v", h.Fault())
	}
}

func TestHostPowerOffDropsPendingInterrupts(t *testing.T) {
	h := NewHost()
	var stacks HeapStacks
	var dispatched int
	h.SetDispatch(func(int) { dispatched++ })

	exited := make(chan struct{})
	entry := func(uintptr) {
		defer close(exited)
		f := h.Disable()
		// Runs while the context unwinds after power-off.
		defer h.Restore(f)
		h.Raise(VectorTimer)
		h.PowerOff()
	}
	c, _ := NewContext(&stacks, ContextConfig{}, entry, 0)
	h.SwitchInitial(c)

	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the context to unwind")
	}
	if dispatched != 0 || h.Delivered() != 0 {
		t.Fatalf("expected no dispatch after power off, got %d", dispatched)
	}
}
