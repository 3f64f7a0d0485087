//go:build !tinygo

package arch

import (
	"errors"
	"fmt"
	"math/bits"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrEntryReturned is recorded when an entry function returns. Tasks have
// no exit path.
var ErrEntryReturned = errors.New("task entry function returned")

// contextEntryIret is the return address of every first-entry frame on
// hosted builds. The host machine recognises it and performs the iret.
func contextEntryIret() {
	panic("arch: iret trampoline executed as a Go function")
}

// TrampolinePC is the address pushed below the iret frame.
func TrampolinePC() uintptr {
	return FuncPC(contextEntryIret)
}

// Host is a single-CPU machine model for hosted builds.
//
// Every context runs on its own goroutine. A switch hands a baton from the
// saving goroutine to the restoring one, so exactly one context executes at
// a time. Stack frames are really pushed and popped on the context's kernel
// stack. Interrupts raised from other goroutines stay pending until the
// running context reaches a safepoint: Restore with IF set, Poll, or Halt.
type Host struct {
	mu      sync.Mutex
	threads map[*Context]*hostThread
	current *hostThread
	tss     TSS

	ifFlag   atomic.Bool
	pending  atomic.Uint32
	kick     chan struct{}
	dispatch func(vector int)

	done       chan struct{}
	doneOnce   sync.Once
	poweredOff atomic.Bool
	fault      any

	switches  atomic.Uint64
	delivered atomic.Uint64
}

type hostThread struct {
	ctx     *Context
	wake    chan struct{}
	regs    CalleeSaved
	entry   TrapFrame
	started bool
}

// NewHost returns a powered-on machine with interrupts disabled, as at reset.
func NewHost() *Host {
	return &Host{
		threads: make(map[*Context]*hostThread),
		kick:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// SetDispatch installs the interrupt entry point. It must be set before
// interrupts are enabled.
func (h *Host) SetDispatch(fn func(vector int)) { h.dispatch = fn }

func (h *Host) TSS() *TSS { return &h.tss }

func (h *Host) thread(c *Context) *hostThread {
	h.mu.Lock()
	defer h.mu.Unlock()
	t := h.threads[c]
	if t == nil {
		t = &hostThread{ctx: c, wake: make(chan struct{}, 1)}
		h.threads[c] = t
	}
	return t
}

func (h *Host) Switch(save, restore *Context) {
	if h.poweredOff.Load() {
		runtime.Goexit()
	}
	from := h.thread(save)
	h.mu.Lock()
	running := h.current
	h.mu.Unlock()
	if running != from {
		panic(fmt.Errorf("host switch: saving context %p is not running", save))
	}

	save.pushCalleeSaved(from.regs)
	h.transfer(restore)
	h.park(from)
	// The resumer popped our registers before waking us.
}

func (h *Host) SwitchInitial(restore *Context) {
	h.transfer(restore)
	<-h.done
}

func (h *Host) transfer(restore *Context) {
	t := h.thread(restore)
	t.regs = restore.popCalleeSaved()
	h.tss.RSP0 = restore.inner.rsp0Top

	h.mu.Lock()
	h.current = t
	h.mu.Unlock()
	h.switches.Add(1)

	if t.started {
		t.wake <- struct{}{}
		return
	}

	t.started = true
	if ret := restore.pop(); ret != uint64(TrampolinePC()) {
		panic(fmt.Errorf("host switch: first-entry return address %#x is not the iret trampoline", ret))
	}
	t.entry = restore.popTrapFrame()
	if t.entry.RIP != uint64(restore.EntryPC()) {
		panic(fmt.Errorf("host switch: iret to %#x, entry is at %#x", t.entry.RIP, restore.EntryPC()))
	}
	h.ifFlag.Store(Flags(t.entry.RFLAGS).Enabled())
	go h.run(t)
}

func (h *Host) run(t *hostThread) {
	defer func() {
		if r := recover(); r != nil {
			h.fail(r)
		}
	}()
	t.ctx.entry(t.ctx.arg)
	h.fail(ErrEntryReturned)
}

func (h *Host) park(t *hostThread) {
	select {
	case <-t.wake:
	case <-h.done:
		runtime.Goexit()
	}
}

func (h *Host) fail(r any) {
	h.mu.Lock()
	if h.fault == nil {
		h.fault = r
	}
	h.mu.Unlock()
	h.Stop()
}

// Stop powers the machine off from outside the running context. Parked
// contexts exit and SwitchInitial returns. Interrupts still pending, or
// unmasked while contexts unwind, are never dispatched.
func (h *Host) Stop() {
	h.doneOnce.Do(func() {
		h.poweredOff.Store(true)
		close(h.done)
	})
}

// PowerOff powers the machine off from the running context. It does not
// return.
func (h *Host) PowerOff() {
	h.Stop()
	runtime.Goexit()
}

// Done is closed once the machine is powered off.
func (h *Host) Done() <-chan struct{} { return h.done }

// Fault returns the panic value that stopped the machine, if any.
func (h *Host) Fault() any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fault
}

// Registers returns the callee-saved registers of the running context as
// they were restored by the last switch into it.
func (h *Host) Registers() CalleeSaved {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		return CalleeSaved{}
	}
	return h.current.regs
}

// EntryFrame returns the iret frame the running context was entered with.
func (h *Host) EntryFrame() TrapFrame {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		return TrapFrame{}
	}
	return h.current.entry
}

// Running returns the context that currently owns the CPU.
func (h *Host) Running() *Context {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		return nil
	}
	return h.current.ctx
}

// Switches returns the number of context transfers performed.
func (h *Host) Switches() uint64 { return h.switches.Load() }

// Delivered returns the number of interrupts delivered.
func (h *Host) Delivered() uint64 { return h.delivered.Load() }

func (h *Host) Disable() Flags {
	if h.ifFlag.Swap(false) {
		return FlagIF
	}
	return 0
}

func (h *Host) Restore(f Flags) {
	if !f.Enabled() {
		return
	}
	h.ifFlag.Store(true)
	h.poll()
}

// Enabled reports whether interrupts are currently unmasked.
func (h *Host) Enabled() bool { return h.ifFlag.Load() }

// Raise marks vector pending. It may be called from any goroutine.
func (h *Host) Raise(vector int) {
	if vector < 0 || vector >= MaxVectors {
		return
	}
	bit := uint32(1) << vector
	for {
		p := h.pending.Load()
		if p&bit != 0 || h.pending.CompareAndSwap(p, p|bit) {
			break
		}
	}
	select {
	case h.kick <- struct{}{}:
	default:
	}
}

// Poll delivers pending interrupts if they are unmasked. Long-running
// contexts call it as their preemption point; a context polling a
// powered-off machine exits.
func (h *Host) Poll() {
	select {
	case <-h.done:
		runtime.Goexit()
	default:
	}
	h.poll()
}

func (h *Host) poll() {
	for h.ifFlag.Load() && !h.poweredOff.Load() {
		p := h.pending.Load()
		if p == 0 {
			return
		}
		v := bits.TrailingZeros32(p)
		if !h.pending.CompareAndSwap(p, p&^(1<<v)) {
			continue
		}
		h.deliver(v)
	}
}

func (h *Host) deliver(vector int) {
	if h.poweredOff.Load() {
		return
	}
	// Interrupt gates clear IF on entry; iretq restores it.
	h.ifFlag.Store(false)
	h.delivered.Add(1)
	if h.dispatch != nil {
		h.dispatch(vector)
	}
	h.ifFlag.Store(true)
}

func (h *Host) Halt() {
	for {
		if h.poweredOff.Load() {
			runtime.Goexit()
		}
		if h.ifFlag.Load() && h.pending.Load() != 0 {
			h.poll()
			return
		}
		select {
		case <-h.kick:
		case <-h.done:
			runtime.Goexit()
		}
	}
}
