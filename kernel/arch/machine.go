package arch

// Flags is a saved RFLAGS value. Only FlagIF is interpreted.
type Flags uint64

// Enabled reports whether interrupts were enabled when f was saved.
func (f Flags) Enabled() bool { return f&FlagIF != 0 }

// TSS holds the trap-entry stack pointer the CPU loads when an interrupt or
// system call arrives from user mode.
type TSS struct {
	RSP0 uintptr
}

// Machine is the register-level switch primitive pair.
//
// Switch pushes the callee-saved registers on save's kernel stack, records
// the stack pointer in save, then restores restore's registers and stack
// pointer and writes restore's kernel stack top into the TSS. It returns on
// save's side only when another Switch resumes save.
//
// SwitchInitial does the restore half only.
type Machine interface {
	Switch(save, restore *Context)
	SwitchInitial(restore *Context)
	TSS() *TSS
}

// Interrupts masks and unmasks interrupt delivery on the local CPU.
//
// Disable returns the previous state for a matching Restore. Halt waits for
// the next interrupt and must be called with interrupts enabled.
type Interrupts interface {
	Disable() Flags
	Restore(Flags)
	Halt()
}

// Interrupt vectors routed to the core.
const (
	VectorTimer    = 0
	VectorKeyboard = 1
	MaxVectors     = 32
)
