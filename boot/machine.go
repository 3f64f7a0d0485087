package boot

import "ember/kernel/arch"

// Machine is the CPU the kernel boots on.
type Machine interface {
	arch.Machine
	arch.Interrupts

	// SetDispatch installs the interrupt entry point.
	SetDispatch(fn func(vector int))
	// Raise asserts an interrupt line. It may be called from any goroutine.
	Raise(vector int)
	// Poll is the preemption point of tasks that never block.
	Poll()
	// Stop powers off from outside the running task.
	Stop()
	// PowerOff powers off from the running task and does not return.
	PowerOff()
	Done() <-chan struct{}
	// Fault is the value that brought the machine down, if any.
	Fault() any
}
