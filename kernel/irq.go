package kernel

import (
	"errors"
	"fmt"
	"sync/atomic"

	"ember/internal/trust"
	"ember/kernel/arch"
)

const handlersPerVector = 4

var (
	ErrBadVector     = errors.New("bad interrupt vector")
	ErrNoHandlerSlot = errors.New("no free handler slot")
)

// Handler services an interrupt. It returns true when the interrupt was
// for it, which stops the dispatch.
type Handler interface {
	HandleIRQ(vector int) bool
}

type HandlerFunc func(vector int) bool

func (f HandlerFunc) HandleIRQ(vector int) bool { return f(vector) }

// IRQTable routes interrupt vectors to handlers. Handlers are added during
// boot, before interrupts are enabled.
type IRQTable struct {
	vectors  [arch.MaxVectors][handlersPerVector]Handler
	counts   [arch.MaxVectors]atomic.Uint64
	spurious atomic.Uint64
}

// Add installs h in the first free slot of vector.
func (t *IRQTable) Add(vector int, h Handler) error {
	if vector < 0 || vector >= arch.MaxVectors {
		return fmt.Errorf("irq add %d: %w", vector, ErrBadVector)
	}
	for i := range t.vectors[vector] {
		if t.vectors[vector][i] == nil {
			t.vectors[vector][i] = h
			return nil
		}
	}
	return fmt.Errorf("irq add %d: %w", vector, ErrNoHandlerSlot)
}

// Dispatch runs the handlers of vector in slot order until one reports the
// interrupt handled.
func (t *IRQTable) Dispatch(vector int) {
	if vector < 0 || vector >= arch.MaxVectors {
		t.spurious.Add(1)
		return
	}
	t.counts[vector].Add(1)
	for _, h := range t.vectors[vector] {
		if h == nil {
			break
		}
		if h.HandleIRQ(vector) {
			return
		}
	}
	t.spurious.Add(1)
	trust.Debugf("irq %d: unhandled", vector)
}

// Count returns how many times vector was dispatched.
func (t *IRQTable) Count(vector int) uint64 {
	if vector < 0 || vector >= arch.MaxVectors {
		return 0
	}
	return t.counts[vector].Load()
}

// Spurious returns the number of interrupts no handler claimed.
func (t *IRQTable) Spurious() uint64 { return t.spurious.Load() }

// AttachTimer routes the timer vector to Tick.
func (s *Scheduler) AttachTimer(t *IRQTable) error {
	return t.Add(arch.VectorTimer, HandlerFunc(func(int) bool {
		s.Tick()
		return true
	}))
}
