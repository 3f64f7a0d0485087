package arch

import (
	"fmt"
	"reflect"
)

// Entry is the first function a context runs. It receives the spawn argument.
type Entry func(arg uintptr)

const wordSize = 8

// Segment selectors installed by the GDT collaborator.
const (
	KernelCS = 0x08
	KernelSS = 0x10
	UserCS   = 0x23
	UserSS   = 0x1B
)

// FlagIF is the RFLAGS interrupt-enable bit.
const FlagIF Flags = 1 << 9

// Number of callee-saved registers the switch primitive pushes.
const calleeSavedWords = 6

// frameWords is the size of the synthetic first-entry frame.
const frameWords = calleeSavedWords + 1 + 5

// Privilege selects the segment pair placed in the first-entry iret frame.
type Privilege uint8

const (
	PrivilegeKernel Privilege = iota
	PrivilegeUser
)

func (p Privilege) String() string {
	switch p {
	case PrivilegeKernel:
		return "kernel"
	case PrivilegeUser:
		return "user"
	default:
		return "unknown"
	}
}

func (p Privilege) selectors() (cs, ss uint64) {
	if p == PrivilegeUser {
		return UserCS, UserSS
	}
	return KernelCS, KernelSS
}

// CalleeSaved is the register set preserved across a switch, in pop order.
type CalleeSaved struct {
	RBX uint64
	RBP uint64
	R12 uint64
	R13 uint64
	R14 uint64
	R15 uint64
}

// TrapFrame is the privilege-transition frame consumed by iretq.
type TrapFrame struct {
	RIP    uint64
	CS     uint64
	RFLAGS uint64
	RSP    uint64
	SS     uint64
}

// InitialFrame is a decoded first-entry frame, as found on a kernel stack
// that has never been switched into.
type InitialFrame struct {
	Regs       CalleeSaved
	Trampoline uint64
	Trap       TrapFrame
}

func (f InitialFrame) String() string {
	return fmt.Sprintf("rip=%#x cs=%#x rflags=%#x rsp=%#x ss=%#x ret=%#x",
		f.Trap.RIP, f.Trap.CS, f.Trap.RFLAGS, f.Trap.RSP, f.Trap.SS, f.Trampoline)
}

// FuncPC returns the code address of fn.
func FuncPC(fn any) uintptr {
	if fn == nil {
		return 0
	}
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return 0
	}
	return v.Pointer()
}
