package kernel

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// CPUID names a logical CPU.
type CPUID int

// MaxCPUs is the number of logical CPUs with scheduler storage.
const MaxCPUs = 1

var ErrCPUInstalled = errors.New("cpu already has a scheduler")

var cpus [MaxCPUs]atomic.Pointer[Scheduler]

// Install binds s to cpu. It is done once per CPU during boot, before
// interrupts can fire.
func Install(cpu CPUID, s *Scheduler) error {
	if cpu < 0 || int(cpu) >= MaxCPUs {
		return fmt.Errorf("install cpu %d: no such cpu", cpu)
	}
	if s == nil {
		return fmt.Errorf("install cpu %d: nil scheduler", cpu)
	}
	if !cpus[cpu].CompareAndSwap(nil, s) {
		return fmt.Errorf("install cpu %d: %w", cpu, ErrCPUInstalled)
	}
	return nil
}

// Uninstall releases cpu at power-off so a new scheduler can be installed.
func Uninstall(cpu CPUID, s *Scheduler) bool {
	if cpu < 0 || int(cpu) >= MaxCPUs {
		return false
	}
	return cpus[cpu].CompareAndSwap(s, nil)
}

// This returns the scheduler of the running CPU, or nil before Install.
func This() *Scheduler {
	return cpus[thisCPU()].Load()
}

func thisCPU() CPUID { return 0 }

// Yield switches away from the running task of this CPU.
func Yield() {
	s := This()
	if s == nil {
		panic("kernel: yield before install")
	}
	s.Switch()
}

// Current returns the running task of this CPU, or 0 before Enter.
func Current() TaskID {
	s := This()
	if s == nil || !s.Entered() {
		return 0
	}
	return s.Current()
}
