//go:build tinygo

package arch

import "unsafe"

// Bare is the machine on real hardware. The register switch, the iret
// trampoline and the TSS are provided by the board startup assembly.
type Bare struct{}

//go:extern TSS
var hwTSS TSS

//export context_switch
func contextSwitch(dst, src unsafe.Pointer)

//export context_switch_to
func contextSwitchTo(dst unsafe.Pointer)

//export context_entry_iret
func contextEntryIret()

// TrampolinePC is the address pushed below the iret frame.
func TrampolinePC() uintptr {
	return FuncPC(contextEntryIret)
}

//export irq_save_disable
func irqSaveDisable() uint64

//export irq_restore
func irqRestore(rflags uint64)

//export cpu_halt
func cpuHalt()

func (Bare) Switch(save, restore *Context) {
	contextSwitch(unsafe.Pointer(&restore.inner), unsafe.Pointer(&save.inner))
}

func (Bare) SwitchInitial(restore *Context) {
	contextSwitchTo(unsafe.Pointer(&restore.inner))
}

func (Bare) TSS() *TSS { return &hwTSS }

func (Bare) Disable() Flags { return Flags(irqSaveDisable()) }

func (Bare) Restore(f Flags) {
	if f.Enabled() {
		irqRestore(uint64(f))
	}
}

func (Bare) Halt() { cpuHalt() }

var dispatch func(vector int)

// SetDispatch installs the interrupt entry point called by the IDT stubs.
func (Bare) SetDispatch(fn func(vector int)) { dispatch = fn }

//export irq_dispatch
func irqDispatch(vector uint32) {
	if dispatch != nil {
		dispatch(int(vector))
	}
}

// Raise does nothing; interrupts come from the interrupt controller.
func (Bare) Raise(int) {}

// Poll does nothing; interrupts are delivered as soon as they are unmasked.
func (Bare) Poll() {}

// Stop does nothing on hardware.
func (Bare) Stop() {}

// PowerOff halts the CPU for good.
func (Bare) PowerOff() {
	irqSaveDisable()
	for {
		cpuHalt()
	}
}

func (Bare) Done() <-chan struct{} { return nil }

func (Bare) Fault() any { return nil }
