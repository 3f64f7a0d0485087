// Package archtest provides a machine that records switches instead of
// performing them, for deterministic scheduler tests.
package archtest

import "ember/kernel/arch"

// Transfer is one recorded switch. From is nil for the initial switch.
type Transfer struct {
	From *arch.Context
	To   *arch.Context
}

// Recorder implements arch.Machine and arch.Interrupts. Control never
// leaves the caller: Switch returns immediately as if the saved context had
// already been resumed.
type Recorder struct {
	Transfers []Transfer
	Halts     int

	// MaxDepth is the deepest nesting of Disable seen.
	MaxDepth int

	tss   arch.TSS
	flags arch.Flags
	depth int
}

// New returns a recorder with interrupts enabled.
func New() *Recorder {
	return &Recorder{flags: arch.FlagIF}
}

func (r *Recorder) Switch(save, restore *arch.Context) {
	r.Transfers = append(r.Transfers, Transfer{From: save, To: restore})
	r.tss.RSP0 = restore.KernelStackTop()
}

func (r *Recorder) SwitchInitial(restore *arch.Context) {
	r.Transfers = append(r.Transfers, Transfer{To: restore})
	r.tss.RSP0 = restore.KernelStackTop()
}

func (r *Recorder) TSS() *arch.TSS { return &r.tss }

func (r *Recorder) Disable() arch.Flags {
	prev := r.flags
	r.flags = 0
	r.depth++
	if r.depth > r.MaxDepth {
		r.MaxDepth = r.depth
	}
	return prev
}

func (r *Recorder) Restore(f arch.Flags) {
	if r.depth > 0 {
		r.depth--
	}
	r.flags = f
}

func (r *Recorder) Halt() { r.Halts++ }

// Enabled reports whether interrupts are unmasked.
func (r *Recorder) Enabled() bool { return r.flags.Enabled() }

// Last returns the most recent transfer, or a zero Transfer.
func (r *Recorder) Last() Transfer {
	if len(r.Transfers) == 0 {
		return Transfer{}
	}
	return r.Transfers[len(r.Transfers)-1]
}

// Reset forgets recorded transfers.
func (r *Recorder) Reset() {
	r.Transfers = r.Transfers[:0]
}
