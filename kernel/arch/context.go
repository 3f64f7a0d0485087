package arch

import (
	"encoding/binary"
	"fmt"
)

// inner is the part of a context the switch assembly addresses by offset.
type inner struct {
	rsp0    uintptr // 0x00: saved kernel stack pointer
	rsp0Top uintptr // 0x08: top of kernel stack, loaded into TSS.RSP0
}

// Context is the saved execution state of one task together with the
// kernel and user stacks it owns.
type Context struct {
	inner  inner
	kstack Stack
	ustack Stack

	entry Entry
	arg   uintptr
	mode  Privilege
}

// ContextConfig sizes the stacks of a new context.
type ContextConfig struct {
	KernelStackSize int
	UserStackSize   int
	Mode            Privilege
}

// NewContext allocates both stacks and builds the first-entry frame so the
// first switch lands in entry at the requested privilege level.
func NewContext(stacks StackAllocator, cfg ContextConfig, entry Entry, arg uintptr) (*Context, error) {
	if entry == nil {
		return nil, fmt.Errorf("new context: nil entry")
	}
	if cfg.KernelStackSize == 0 {
		cfg.KernelStackSize = DefaultKernelStackSize
	}
	if cfg.UserStackSize == 0 {
		cfg.UserStackSize = DefaultUserStackSize
	}

	kstack, err := stacks.AllocStack(cfg.KernelStackSize)
	if err != nil {
		return nil, fmt.Errorf("kernel stack: %w", err)
	}
	ustack, err := stacks.AllocStack(cfg.UserStackSize)
	if err != nil {
		return nil, fmt.Errorf("user stack: %w", err)
	}

	c := &Context{
		kstack: kstack,
		ustack: ustack,
		entry:  entry,
		arg:    arg,
		mode:   cfg.Mode,
	}
	c.setup()
	return c, nil
}

func (c *Context) setup() {
	top := c.kstack.Top()
	c.inner.rsp0 = top
	c.inner.rsp0Top = top

	cs, ss := c.mode.selectors()

	// iret frame
	c.push(ss)
	c.push(uint64(c.ustack.Top()))
	c.push(uint64(FlagIF))
	c.push(cs)
	c.push(uint64(FuncPC(c.entry)))

	c.push(uint64(TrampolinePC()))

	// r15, r14, r13, r12, rbp, rbx
	for i := 0; i < calleeSavedWords; i++ {
		c.push(0)
	}
}

func (c *Context) push(val uint64) {
	if c.inner.rsp0 < c.kstack.Base+wordSize {
		panic(fmt.Errorf("context push at %#x (base %#x): %w", c.inner.rsp0, c.kstack.Base, ErrStackOverflow))
	}
	c.inner.rsp0 -= wordSize
	off := c.inner.rsp0 - c.kstack.Base
	binary.LittleEndian.PutUint64(c.kstack.Mem[off:], val)
}

func (c *Context) pop() uint64 {
	if c.inner.rsp0+wordSize > c.kstack.Top() {
		panic(fmt.Errorf("context pop at %#x (top %#x): stack underflow", c.inner.rsp0, c.kstack.Top()))
	}
	off := c.inner.rsp0 - c.kstack.Base
	val := binary.LittleEndian.Uint64(c.kstack.Mem[off:])
	c.inner.rsp0 += wordSize
	return val
}

func (c *Context) peek(word int) uint64 {
	off := c.inner.rsp0 - c.kstack.Base + uintptr(word*wordSize)
	return binary.LittleEndian.Uint64(c.kstack.Mem[off:])
}

func (c *Context) pushCalleeSaved(r CalleeSaved) {
	c.push(r.R15)
	c.push(r.R14)
	c.push(r.R13)
	c.push(r.R12)
	c.push(r.RBP)
	c.push(r.RBX)
}

func (c *Context) popCalleeSaved() CalleeSaved {
	var r CalleeSaved
	r.RBX = c.pop()
	r.RBP = c.pop()
	r.R12 = c.pop()
	r.R13 = c.pop()
	r.R14 = c.pop()
	r.R15 = c.pop()
	return r
}

func (c *Context) popTrapFrame() TrapFrame {
	var f TrapFrame
	f.RIP = c.pop()
	f.CS = c.pop()
	f.RFLAGS = c.pop()
	f.RSP = c.pop()
	f.SS = c.pop()
	return f
}

// SwitchTo saves the running state into c and resumes other. It returns
// when some context switches back into c.
func (c *Context) SwitchTo(m Machine, other *Context) {
	m.Switch(c, other)
}

// InitialSwitch transfers into c with nothing to save. Used once at boot.
func (c *Context) InitialSwitch(m Machine) {
	m.SwitchInitial(c)
}

// SavedSP returns the saved kernel stack pointer.
func (c *Context) SavedSP() uintptr { return c.inner.rsp0 }

// KernelStackTop returns the value loaded into TSS.RSP0 on switch.
func (c *Context) KernelStackTop() uintptr { return c.inner.rsp0Top }

// KernelStack returns the owned kernel stack.
func (c *Context) KernelStack() Stack { return c.kstack }

// UserStack returns the owned user stack.
func (c *Context) UserStack() Stack { return c.ustack }

// Mode returns the privilege level of the first entry.
func (c *Context) Mode() Privilege { return c.mode }

// EntryPC returns the code address of the entry function.
func (c *Context) EntryPC() uintptr { return FuncPC(c.entry) }

// Arg returns the argument passed to the entry function.
func (c *Context) Arg() uintptr { return c.arg }

// SavedSPValid reports whether the saved stack pointer is word aligned and
// inside the owned kernel stack.
func (c *Context) SavedSPValid() bool {
	sp := c.inner.rsp0
	return c.kstack.Contains(sp) && (sp-c.kstack.Base)%wordSize == 0
}

// Frame decodes the first-entry frame. It is only meaningful before the
// context has been switched into.
func (c *Context) Frame() (InitialFrame, error) {
	if c.inner.rsp0Top-c.inner.rsp0 != frameWords*wordSize {
		return InitialFrame{}, fmt.Errorf("context frame: %d bytes on stack, want %d",
			c.inner.rsp0Top-c.inner.rsp0, frameWords*wordSize)
	}
	var f InitialFrame
	f.Regs = CalleeSaved{
		RBX: c.peek(0),
		RBP: c.peek(1),
		R12: c.peek(2),
		R13: c.peek(3),
		R14: c.peek(4),
		R15: c.peek(5),
	}
	f.Trampoline = c.peek(6)
	f.Trap = TrapFrame{
		RIP:    c.peek(7),
		CS:     c.peek(8),
		RFLAGS: c.peek(9),
		RSP:    c.peek(10),
		SS:     c.peek(11),
	}
	return f, nil
}
