package boot

import (
	"sync/atomic"

	"ember/hal"
	"ember/internal/trust"
	"ember/kernel"
	"ember/kernel/arch"
)

const (
	kbdDeviceDepth = 16
	kbdBufferSize  = 64
)

// keyboard is the interrupt-driven keyboard driver. The device FIFO is
// filled from outside the kernel; the interrupt handler drains it into the
// driver buffer and signals one permit per key.
type keyboard struct {
	irq    arch.Interrupts
	device chan hal.KeyEvent

	buf        [kbdBufferSize]hal.KeyEvent
	head, tail uint32
	keys       *kernel.Semaphore

	dropped atomic.Uint64
}

func newKeyboard(s *kernel.Scheduler, irq arch.Interrupts) *keyboard {
	return &keyboard{
		irq:    irq,
		device: make(chan hal.KeyEvent, kbdDeviceDepth),
		keys:   s.NewBoundedSemaphore(0, kbdBufferSize),
	}
}

// deliver latches ev in the device FIFO. It reports false when the FIFO
// overflowed and the key was lost.
func (k *keyboard) deliver(ev hal.KeyEvent) bool {
	select {
	case k.device <- ev:
		return true
	default:
		return false
	}
}

// HandleIRQ runs with interrupts masked.
func (k *keyboard) HandleIRQ(int) bool {
	handled := false
	for {
		select {
		case ev := <-k.device:
			handled = true
			if !ev.Press {
				continue
			}
			if k.head-k.tail == kbdBufferSize {
				k.dropped.Add(1)
				continue
			}
			k.buf[k.head%kbdBufferSize] = ev
			k.head++
			trust.Debugf("kbd: press code=%d rune=%q", ev.Code, ev.Rune)
			k.keys.Signal()
		default:
			return handled
		}
	}
}

// Read blocks the calling task until a key is pressed.
func (k *keyboard) Read() hal.KeyEvent {
	k.keys.Wait()
	f := k.irq.Disable()
	defer k.irq.Restore(f)
	ev := k.buf[k.tail%kbdBufferSize]
	k.tail++
	return ev
}

// Dropped counts presses lost to a full driver buffer.
func (k *keyboard) Dropped() uint64 { return k.dropped.Load() }
