package boot

import (
	"fmt"
	"strconv"

	"ember/hal"
	"ember/internal/trust"
	"ember/kernel"
	"ember/kernel/arch"
)

const pipeSize = 4

// pipe is a bounded buffer shared by the producer and consumer demos.
type pipe struct {
	buf          [pipeSize]int
	head, tail   int
	slots, items *kernel.Semaphore
}

func (sys *System) spawnDemos() error {
	if sys.cfg.has(DemoRoundRobin) {
		for n := uintptr(1); n <= 3; n++ {
			if err := sys.spawnFinite(sys.printer, n, "rr"+strconv.Itoa(int(n))); err != nil {
				return err
			}
		}
	}
	if sys.cfg.has(DemoSemaphore) {
		sys.pipe.slots = sys.sched.NewBoundedSemaphore(pipeSize, pipeSize)
		sys.pipe.items = sys.sched.NewBoundedSemaphore(0, pipeSize)
		if err := sys.spawnFinite(sys.producer, 0, "producer"); err != nil {
			return err
		}
		if err := sys.spawnFinite(sys.consumer, 0, "consumer"); err != nil {
			return err
		}
	}
	if sys.cfg.has(DemoKeyboard) {
		if err := sys.spawnTask(sys.echo, 0, "echo"); err != nil {
			return err
		}
	}
	if sys.cfg.has(DemoSpin) {
		if err := sys.spawnFinite(sys.spinner, 0, "spin"); err != nil {
			return err
		}
		if err := sys.spawnTask(sys.yielder, 0, "spin-peer"); err != nil {
			return err
		}
	}
	if sys.cfg.Rounds > 0 && sys.finite > 0 {
		return sys.spawnTask(sys.monitor, uintptr(sys.finite), "monitor")
	}
	return nil
}

func (sys *System) spawnTask(entry func(uintptr), arg uintptr, name string) error {
	spawn := sys.sched.Spawn
	if sys.cfg.User {
		spawn = sys.sched.SpawnUser
	}
	id, err := spawn(entry, arg, name)
	if err != nil {
		return fmt.Errorf("spawn %s: %w", name, err)
	}
	sys.sched.Queue(id)
	return nil
}

// spawnFinite spawns a task that reports to the monitor once its rounds
// are done.
func (sys *System) spawnFinite(entry func(uintptr), arg uintptr, name string) error {
	if err := sys.spawnTask(entry, arg, name); err != nil {
		return err
	}
	sys.finite++
	return nil
}

func (sys *System) more(round int) bool {
	return sys.cfg.Rounds == 0 || round < sys.cfg.Rounds
}

// finish reports to the monitor and parks the task for good. Tasks are
// never destroyed.
func (sys *System) finish() {
	sys.done.Signal()
	for {
		sys.never.Wait()
	}
}

func (sys *System) emit(demo, format string, args ...any) {
	line := demo + ": " + fmt.Sprintf(format, args...)
	sys.h.Logger().WriteLineString(line)
	sys.con.WriteLineString(line)
}

func (sys *System) printer(n uintptr) {
	for round := 0; sys.more(round); round++ {
		sys.emit(DemoRoundRobin, "%d", n)
		kernel.Yield()
	}
	sys.finish()
}

func (sys *System) producer(uintptr) {
	p := &sys.pipe
	for i := 0; sys.more(i); i++ {
		p.slots.Wait()
		f := sys.m.Disable()
		p.buf[p.head%pipeSize] = i
		p.head++
		sys.m.Restore(f)
		sys.emit(DemoSemaphore, "produce %d", i)
		p.items.Signal()
	}
	sys.finish()
}

func (sys *System) consumer(uintptr) {
	p := &sys.pipe
	for i := 0; sys.more(i); i++ {
		p.items.Wait()
		f := sys.m.Disable()
		v := p.buf[p.tail%pipeSize]
		p.tail++
		sys.m.Restore(f)
		if v != i {
			trust.Errorf("sem: expected item %d, got %d", i, v)
		}
		sys.emit(DemoSemaphore, "consume %d", v)
		p.slots.Signal()
	}
	sys.finish()
}

// echo prints every key press. Escape powers the machine off.
func (sys *System) echo(uintptr) {
	for {
		ev := sys.kbd.Read()
		switch {
		case ev.Code == hal.KeyEscape:
			sys.emit(DemoKeyboard, "escape, powering off")
			sys.m.PowerOff()
		case ev.Code == hal.KeyEnter:
			sys.emit(DemoKeyboard, "enter")
		case ev.Rune != 0:
			sys.emit(DemoKeyboard, "%c", ev.Rune)
		default:
			sys.emit(DemoKeyboard, "key %d", ev.Code)
		}
	}
}

// spinner never blocks or yields. It only moves on when the timer takes
// the CPU away; each return to the CPU counts as a round.
func (sys *System) spinner(uintptr) {
	self := sys.sched.Task(kernel.Current())
	last := self.Runs()
	for round := 0; sys.more(round); {
		sys.m.Poll()
		if runs := self.Runs(); runs != last {
			last = runs
			round++
			// The console write is not cut short by the timer.
			sys.sched.DisablePreemption()
			sys.emit(DemoSpin, "preempted %d", round)
			sys.sched.EnablePreemption()
		}
	}
	sys.finish()
}

func (sys *System) yielder(uintptr) {
	for {
		kernel.Yield()
	}
}

func (sys *System) monitor(n uintptr) {
	for i := uintptr(0); i < n; i++ {
		sys.done.Wait()
	}
	st := sys.sched.Stats()
	trust.Statsf("sched", "tasks=%d switches=%d ticks=%d", st.Tasks, st.Switches, st.Ticks)
	trust.Statsf("irq", "timer=%d keyboard=%d spurious=%d",
		sys.irqs.Count(arch.VectorTimer), sys.irqs.Count(arch.VectorKeyboard), sys.irqs.Spurious())
	trust.Infof("demos finished, powering off")
	sys.m.PowerOff()
}
