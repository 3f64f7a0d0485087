package kernel

import (
	"fmt"
	"sync"
	"sync/atomic"

	"ember/internal/trust"
)

// Fault is the panic value of every fatal kernel condition.
type Fault struct {
	Task TaskID
	Err  error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("kernel fault (task %d): %v", f.Task, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// PanicInfo contains details about a fatal condition.
type PanicInfo struct {
	TaskID TaskID
	Value  any
	Stack  []byte
}

var (
	panicActive atomic.Bool
	panicOnce   sync.Once

	panicHandler atomic.Value // func(PanicInfo)
)

// InPanicMode reports whether the kernel has hit a fatal condition.
func InPanicMode() bool {
	return panicActive.Load()
}

// SetPanicHandler installs a process-wide panic handler.
//
// The handler is invoked at most once (on the first fault). It must not panic.
func SetPanicHandler(fn func(PanicInfo)) {
	panicHandler.Store(fn)
}

func triggerPanic(info PanicInfo) {
	panicOnce.Do(func() {
		panicActive.Store(true)
		info.Stack = captureStack()
		if v := panicHandler.Load(); v != nil {
			if fn, ok := v.(func(PanicInfo)); ok && fn != nil {
				fn(info)
			}
		}
	})
}

// fatalf halts the kernel. Deferred interrupt restores still run while the
// fault unwinds.
func (s *Scheduler) fatalf(format string, args ...any) {
	f := &Fault{Task: s.current, Err: fmt.Errorf(format, args...)}
	trust.Errorf("%v", f)
	triggerPanic(PanicInfo{TaskID: f.Task, Value: f})
	panic(f)
}
