// Package boot brings the kernel up on a HAL: it wires the logger, the
// console, the scheduler, the interrupt table and the keyboard driver,
// spawns the demo tasks named on the command line and enters the
// scheduler.
package boot

import (
	"context"
	"fmt"

	"ember/console"
	"ember/hal"
	"ember/internal/buildinfo"
	"ember/internal/trust"
	"ember/kernel"
	"ember/kernel/arch"

	"golang.org/x/sync/errgroup"
)

// System is a booted kernel. It implements hal.Kernel.
type System struct {
	h   hal.HAL
	cfg Config
	m   Machine

	sched *kernel.Scheduler
	irqs  kernel.IRQTable
	con   *console.Console
	kbd   *keyboard

	// done counts finished demos; never is never signalled.
	done, never *kernel.Semaphore
	finite      int

	pipe pipe
}

// New prepares a kernel on h. Nothing runs until Run.
func New(h hal.HAL, cfg Config) (*System, error) {
	return newSystem(h, cfg, newMachine())
}

// NewFromCmdline parses line and prepares a kernel on h.
func NewFromCmdline(h hal.HAL, line string) (*System, error) {
	cfg, err := ParseCmdline(line)
	if err != nil {
		return nil, err
	}
	return New(h, cfg)
}

func newSystem(h hal.HAL, cfg Config, m Machine) (*System, error) {
	sys := &System{h: h, cfg: cfg, m: m}

	var fb hal.Framebuffer
	if d := h.Display(); d != nil {
		fb = d.Framebuffer()
	}
	sys.con = console.New(fb)

	trust.SetSink(h.Logger(), sys.con)
	trust.Allow(cfg.Level)
	installPanicHandler(h, sys.con)

	if cfg.Banner {
		sys.con.WriteLineString(buildinfo.Banner())
	}
	trust.Infof("boot: %s", buildinfo.Banner())

	s, err := kernel.NewScheduler(kernel.Config{
		Machine:         m,
		Interrupts:      m,
		Stacks:          h.Stacks(),
		KernelStackSize: cfg.KernelStackSize,
		UserStackSize:   cfg.UserStackSize,
		Quantum:         cfg.Quantum,
		Checked:         cfg.Checked,
	})
	if err != nil {
		return nil, fmt.Errorf("boot: %w", err)
	}
	sys.sched = s
	sys.done = s.NewSemaphore(0)
	sys.never = s.NewSemaphore(0)

	if err := s.AttachTimer(&sys.irqs); err != nil {
		return nil, fmt.Errorf("boot: timer: %w", err)
	}
	sys.kbd = newKeyboard(s, m)
	if err := sys.irqs.Add(arch.VectorKeyboard, sys.kbd); err != nil {
		return nil, fmt.Errorf("boot: keyboard: %w", err)
	}
	m.SetDispatch(sys.irqs.Dispatch)

	if err := sys.spawnDemos(); err != nil {
		return nil, fmt.Errorf("boot: %w", err)
	}
	trust.Infof("boot: demos %v, %d tasks, quantum %d", cfg.Demos, s.Stats().Tasks, cfg.Quantum)
	return sys, nil
}

// Scheduler returns the kernel's scheduler.
func (sys *System) Scheduler() *kernel.Scheduler { return sys.sched }

// Console returns the framebuffer console.
func (sys *System) Console() *console.Console { return sys.con }

// Run enters the scheduler on CPU 0 and blocks until the machine powers
// off. A fault that brought the machine down is returned as an error.
func (sys *System) Run() error {
	if err := kernel.Install(0, sys.sched); err != nil {
		return fmt.Errorf("boot: %w", err)
	}
	defer kernel.Uninstall(0, sys.sched)

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	sys.forwardTicks(ctx, g)
	sys.forwardKeys(ctx, g)

	sys.sched.Enter()

	cancel()
	_ = g.Wait()

	st := sys.sched.Stats()
	trust.Infof("power off: %d switches, %d ticks, %d keys dropped", st.Switches, st.Ticks, sys.kbd.Dropped())
	if f := sys.m.Fault(); f != nil {
		if err, ok := f.(error); ok {
			return fmt.Errorf("kernel halted: %w", err)
		}
		return fmt.Errorf("kernel halted: %v", f)
	}
	return nil
}

// Stop powers the machine off from outside the kernel.
func (sys *System) Stop() { sys.m.Stop() }

// forwardTicks turns HAL timer ticks into timer interrupts.
func (sys *System) forwardTicks(ctx context.Context, g *errgroup.Group) {
	t := sys.h.Time()
	if t == nil || t.Ticks() == nil {
		return
	}
	ch := t.Ticks()
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-sys.m.Done():
				return nil
			case _, ok := <-ch:
				if !ok {
					return nil
				}
				sys.m.Raise(arch.VectorTimer)
			}
		}
	})
}

// forwardKeys latches HAL key events into the keyboard device and raises
// its interrupt.
func (sys *System) forwardKeys(ctx context.Context, g *errgroup.Group) {
	in := sys.h.Input()
	if in == nil || in.Keyboard() == nil {
		return
	}
	ch := in.Keyboard().Events()
	if ch == nil {
		return
	}
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-sys.m.Done():
				return nil
			case ev, ok := <-ch:
				if !ok {
					return nil
				}
				if !sys.kbd.deliver(ev) {
					trust.Warnf("kbd: device overrun")
				}
				sys.m.Raise(arch.VectorKeyboard)
			}
		}
	})
}
