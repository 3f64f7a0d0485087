package kernel

import (
	"errors"
	"fmt"
	"sync/atomic"

	"ember/internal/trust"
	"ember/kernel/arch"
)

// ErrTooManyTasks is returned by Spawn when the task arena is full.
var ErrTooManyTasks = errors.New("too many tasks")

// Config wires a scheduler to its machine.
type Config struct {
	Machine    arch.Machine
	Interrupts arch.Interrupts

	// Stacks defaults to heap stacks without guard pages.
	Stacks          arch.StackAllocator
	KernelStackSize int
	UserStackSize   int

	// Quantum is the number of timer ticks a task runs before Tick
	// preempts it. Zero means one.
	Quantum int

	// Checked verifies the ready ring after every mutation.
	Checked bool
}

// Stats is a snapshot of scheduler counters.
type Stats struct {
	Current  TaskID
	Tasks    int
	Ready    int
	Switches uint64
	Ticks    uint64
}

// Scheduler owns the tasks of one logical CPU and decides what runs next.
//
// Every operation runs with interrupts disabled and restores the previous
// state on return, including when a fault unwinds through it. Queue, Signal
// and Tick may be called from interrupt context.
type Scheduler struct {
	m       arch.Machine
	irq     arch.Interrupts
	stacks  arch.StackAllocator
	cfg     Config
	quantum int

	tasks [MaxTasks]Task
	count int

	current TaskID
	idle    TaskID
	head    TaskID
	entered bool

	counter int
	preempt int

	switches atomic.Uint64
	ticks    atomic.Uint64
}

// NewScheduler returns a scheduler with its idle task spawned.
func NewScheduler(cfg Config) (*Scheduler, error) {
	if cfg.Machine == nil || cfg.Interrupts == nil {
		return nil, errors.New("new scheduler: machine and interrupts are required")
	}
	if cfg.Stacks == nil {
		cfg.Stacks = &arch.HeapStacks{}
	}
	if cfg.Quantum <= 0 {
		cfg.Quantum = 1
	}
	s := &Scheduler{
		m:       cfg.Machine,
		irq:     cfg.Interrupts,
		stacks:  cfg.Stacks,
		cfg:     cfg,
		quantum: cfg.Quantum,
	}
	id, err := s.spawn(s.idleLoop, 0, "idle", arch.PrivilegeKernel)
	if err != nil {
		return nil, fmt.Errorf("new scheduler: %w", err)
	}
	s.idle = id
	s.tasks[id-1].state = StateReady
	return s, nil
}

func (s *Scheduler) idleLoop(uintptr) {
	for {
		s.irq.Halt()
	}
}

func (s *Scheduler) lock() arch.Flags {
	if s.irq == nil {
		s.fatalf("scheduler used before initialization")
	}
	return s.irq.Disable()
}

func (s *Scheduler) unlock(f arch.Flags) { s.irq.Restore(f) }

func (s *Scheduler) needIdle(op string) {
	if s.idle == 0 {
		s.fatalf("%s: no idle task", op)
	}
}

func (s *Scheduler) check(op string) {
	if !s.cfg.Checked {
		return
	}
	if err := s.checkRing(); err != nil {
		s.fatalf("%s: %w", op, err)
	}
}

// task returns the arena entry for id or halts.
func (s *Scheduler) task(op string, id TaskID) *Task {
	t := s.slot(id)
	if t == nil {
		s.fatalf("%s: no task %d", op, id)
	}
	return t
}

// Spawn creates a kernel-mode task that will run entry(arg) when first
// switched into. The task is not queued.
func (s *Scheduler) Spawn(entry arch.Entry, arg uintptr, name string) (TaskID, error) {
	return s.spawn(entry, arg, name, arch.PrivilegeKernel)
}

// SpawnUser is Spawn with a user-mode first-entry frame.
func (s *Scheduler) SpawnUser(entry arch.Entry, arg uintptr, name string) (TaskID, error) {
	return s.spawn(entry, arg, name, arch.PrivilegeUser)
}

func (s *Scheduler) spawn(entry arch.Entry, arg uintptr, name string, mode arch.Privilege) (TaskID, error) {
	defer s.unlock(s.lock())

	if s.count >= MaxTasks {
		return 0, fmt.Errorf("spawn %q: %w", name, ErrTooManyTasks)
	}
	ctx, err := s.newContext(entry, arg, mode)
	if err != nil {
		return 0, fmt.Errorf("spawn %q: %w", name, err)
	}

	s.count++
	id := TaskID(s.count)
	s.tasks[id-1] = Task{
		id:   id,
		name: name,
		arg:  arg,
		ctx:  ctx,
	}
	trust.Debugf("spawn %d %q %s kstack=%#x", id, name, mode, ctx.KernelStackTop())
	return id, nil
}

// newContext turns a frame construction overflow into a kernel fault.
func (s *Scheduler) newContext(entry arch.Entry, arg uintptr, mode arch.Privilege) (*arch.Context, error) {
	defer func() {
		if r := recover(); r != nil {
			if err, ok := r.(error); ok && errors.Is(err, arch.ErrStackOverflow) {
				s.fatalf("spawn: %w", err)
			}
			panic(r)
		}
	}()
	return arch.NewContext(s.stacks, arch.ContextConfig{
		KernelStackSize: s.cfg.KernelStackSize,
		UserStackSize:   s.cfg.UserStackSize,
		Mode:            mode,
	}, entry, arg)
}

// Queue makes id ready by inserting it before the ring head. Queueing a
// task that is already queued, or the idle task, is fatal.
func (s *Scheduler) Queue(id TaskID) {
	defer s.unlock(s.lock())
	s.needIdle("queue")

	t := s.task("queue", id)
	if id == s.idle {
		s.fatalf("queue: idle task is never queued")
	}
	if t.Queued() {
		s.fatalf("queue: task %d already queued", id)
	}
	s.link(id)
	if t.state != StateRunning {
		t.state = StateReady
	}
	s.check("queue")
}

// Dequeue removes id from the ready ring. When id is the running task it
// blocks: control passes to its successor, or to idle if the ring is now
// empty, and Dequeue returns only after id has been queued and scheduled
// again.
func (s *Scheduler) Dequeue(id TaskID) {
	defer s.unlock(s.lock())
	s.needIdle("dequeue")

	t := s.task("dequeue", id)
	if id == s.idle {
		s.fatalf("dequeue: idle task is never queued")
	}
	if !t.Queued() {
		s.fatalf("dequeue: task %d not queued", id)
	}

	succ := t.next
	if succ == id {
		succ = 0
	}
	s.unlink(id)
	t.state = StateBlocked
	s.check("dequeue")

	if id != s.current || !s.entered {
		return
	}
	if succ == 0 {
		succ = s.idle
	}
	s.switchTo(succ)
}

// Switch yields the CPU. The next task is the one after current in the
// ring; a current task that is not queued hands over to the head, and an
// empty ring hands over to idle. Switch does nothing when that choice is
// the current task.
func (s *Scheduler) Switch() {
	defer s.unlock(s.lock())
	s.needIdle("switch")
	if !s.entered {
		s.fatalf("switch: scheduler not entered")
	}

	s.counter = s.quantum
	s.switchTo(s.candidate())
}

// Yield is Switch.
func (s *Scheduler) Yield() { s.Switch() }

func (s *Scheduler) candidate() TaskID {
	if cur := s.slot(s.current); cur != nil && cur.next != 0 {
		return cur.next
	}
	if s.head != 0 {
		return s.head
	}
	return s.idle
}

func (s *Scheduler) switchTo(next TaskID) {
	if next == s.current {
		return
	}
	to := s.slot(next)
	if to == nil {
		s.fatalf("switch: no candidate")
	}
	from := s.task("switch", s.current)

	if from.state == StateRunning {
		from.state = StateReady
	}
	to.state = StateRunning
	to.runs++
	s.current = next
	s.counter = s.quantum
	s.switches.Add(1)

	trust.Debugf("switch %d %q -> %d %q", from.id, from.name, to.id, to.name)
	from.ctx.SwitchTo(s.m, to.ctx)
}

// Enter starts scheduling: the ring head runs, or idle when nothing is
// queued. It is called once. On hardware it never returns; on a hosted
// machine it returns when the machine powers off.
func (s *Scheduler) Enter() {
	defer s.unlock(s.lock())
	s.needIdle("enter")
	if s.entered {
		s.fatalf("enter: already entered")
	}
	s.entered = true

	next := s.head
	if next == 0 {
		next = s.idle
	}
	t := s.task("enter", next)
	t.state = StateRunning
	t.runs++
	s.current = next
	s.counter = s.quantum

	trust.Infof("enter: task %d %q, %d ready", next, t.name, len(s.ring()))
	t.ctx.InitialSwitch(s.m)
}

// Tick is the timer preemption hook. It runs in interrupt context and
// switches once the running task has used up its quantum, unless
// preemption is disabled.
func (s *Scheduler) Tick() {
	defer s.unlock(s.lock())
	s.ticks.Add(1)
	if !s.entered {
		return
	}
	if s.counter > 0 {
		s.counter--
	}
	if s.counter > 0 || s.preempt > 0 {
		return
	}
	s.counter = s.quantum
	s.switchTo(s.candidate())
}

// DisablePreemption stops Tick from switching until the matching
// EnablePreemption. Calls nest.
func (s *Scheduler) DisablePreemption() {
	defer s.unlock(s.lock())
	s.preempt++
}

// EnablePreemption undoes one DisablePreemption. Unbalanced calls are fatal.
func (s *Scheduler) EnablePreemption() {
	defer s.unlock(s.lock())
	if s.preempt == 0 {
		s.fatalf("enable preemption: not disabled")
	}
	s.preempt--
}

// Current returns the running task, or 0 before Enter.
func (s *Scheduler) Current() TaskID { return s.current }

// Idle returns the idle task.
func (s *Scheduler) Idle() TaskID { return s.idle }

// Entered reports whether Enter has run.
func (s *Scheduler) Entered() bool { return s.entered }

// Task returns the task with the given id, or nil.
func (s *Scheduler) Task(id TaskID) *Task { return s.slot(id) }

// Ready returns the ready ring in rotation order starting at the head.
func (s *Scheduler) Ready() []TaskID {
	defer s.unlock(s.lock())
	return s.ring()
}

// CheckInvariants verifies the ready ring.
func (s *Scheduler) CheckInvariants() error {
	defer s.unlock(s.lock())
	return s.checkRing()
}

func (s *Scheduler) Stats() Stats {
	defer s.unlock(s.lock())
	return Stats{
		Current:  s.current,
		Tasks:    s.count,
		Ready:    len(s.ring()),
		Switches: s.switches.Load(),
		Ticks:    s.ticks.Load(),
	}
}
