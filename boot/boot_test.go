//go:build !tinygo

package boot

import (
	"strings"
	"sync"
	"testing"
	"time"

	"ember/hal"
	"ember/kernel"
	"ember/kernel/arch"
)

type lineLog struct {
	mu    sync.Mutex
	lines []string
}

func (l *lineLog) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, s)
}

func (l *lineLog) WriteLineBytes(b []byte) { l.WriteLineString(string(b)) }

func (l *lineLog) with(prefix string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, s := range l.lines {
		if strings.HasPrefix(s, prefix) {
			out = append(out, strings.TrimPrefix(s, prefix))
		}
	}
	return out
}

// testHAL has no display; keys and ticks are fed by the test.
type testHAL struct {
	log    *lineLog
	keys   chan hal.KeyEvent
	ticks  chan uint64
	stacks arch.HeapStacks
}

func newTestHAL() *testHAL {
	return &testHAL{
		log:   &lineLog{},
		keys:  make(chan hal.KeyEvent, 16),
		ticks: make(chan uint64, 1),
	}
}

func (h *testHAL) Logger() hal.Logger          { return h.log }
func (h *testHAL) Display() hal.Display        { return nil }
func (h *testHAL) Input() hal.Input            { return h }
func (h *testHAL) Keyboard() hal.Keyboard      { return h }
func (h *testHAL) Events() <-chan hal.KeyEvent { return h.keys }
func (h *testHAL) Time() hal.Time              { return h }
func (h *testHAL) Ticks() <-chan uint64        { return h.ticks }
func (h *testHAL) Stacks() arch.StackAllocator { return &h.stacks }

// feedTicks emits timer ticks until stop is closed.
func (h *testHAL) feedTicks(stop <-chan struct{}) {
	var seq uint64
	for {
		seq++
		select {
		case <-stop:
			return
		case h.ticks <- seq:
		}
		time.Sleep(100 * time.Microsecond)
	}
}

func testConfig(demos ...string) Config {
	cfg := DefaultConfig()
	cfg.Demos = demos
	cfg.Banner = false
	cfg.Checked = true
	return cfg
}

func newTestSystem(t *testing.T, h *testHAL, cfg Config) *System {
	t.Helper()
	sys, err := New(h, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return sys
}

func runSystem(t *testing.T, sys *System) {
	t.Helper()
	errc := make(chan error, 1)
	go func() { errc <- sys.Run() }()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(10 * time.Second):
		sys.Stop()
		t.Fatal("timed out waiting for power off")
	}
}

func TestRoundRobinDemoInterleaves(t *testing.T) {
	h := newTestHAL()
	cfg := testConfig(DemoRoundRobin)
	cfg.Rounds = 3
	sys := newTestSystem(t, h, cfg)
	runSystem(t, sys)

	got := strings.Join(h.log.with("rr: "), "")
	if got != "123123123" {
		t.Fatalf("expected 123123123, got %q", got)
	}
	if kernel.This() != nil {
		t.Fatal("expected cpu released after power off")
	}
}

func TestSemaphoreDemoDeliversInOrder(t *testing.T) {
	h := newTestHAL()
	cfg := testConfig(DemoSemaphore)
	cfg.Rounds = 10
	sys := newTestSystem(t, h, cfg)
	runSystem(t, sys)

	var consumed []string
	for _, s := range h.log.with("sem: ") {
		if strings.HasPrefix(s, "consume ") {
			consumed = append(consumed, strings.TrimPrefix(s, "consume "))
		}
	}
	if got := strings.Join(consumed, ","); got != "0,1,2,3,4,5,6,7,8,9" {
		t.Fatalf("expected items 0..9 in order, got %s", got)
	}
	if errs := h.log.with("ERROR:"); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if sys.pipe.slots.Count() != pipeSize || sys.pipe.items.Count() != 0 {
		t.Fatalf("expected empty pipe, got slots=%d items=%d", sys.pipe.slots.Count(), sys.pipe.items.Count())
	}
}

func TestKeyboardDemoEchoesUntilEscape(t *testing.T) {
	h := newTestHAL()
	sys := newTestSystem(t, h, testConfig(DemoKeyboard))

	h.keys <- hal.KeyEvent{Press: true, Rune: 'h'}
	h.keys <- hal.KeyEvent{Press: false, Rune: 'h'}
	h.keys <- hal.KeyEvent{Press: true, Rune: 'i'}
	h.keys <- hal.KeyEvent{Press: true, Code: hal.KeyEnter}
	h.keys <- hal.KeyEvent{Press: true, Code: hal.KeyEscape}

	stop := make(chan struct{})
	defer close(stop)
	go h.feedTicks(stop)
	runSystem(t, sys)

	got := strings.Join(h.log.with("kbd: "), "|")
	if got != "h|i|enter|escape, powering off" {
		t.Fatalf("expected echoed keys, got %q", got)
	}
	if sys.irqs.Count(arch.VectorKeyboard) == 0 {
		t.Fatal("expected keyboard interrupts")
	}
}

func TestSpinDemoIsPreemptedByTimer(t *testing.T) {
	h := newTestHAL()
	cfg := testConfig(DemoSpin)
	cfg.Rounds = 2
	cfg.Quantum = 1
	sys := newTestSystem(t, h, cfg)

	stop := make(chan struct{})
	defer close(stop)
	go h.feedTicks(stop)
	runSystem(t, sys)

	got := h.log.with("spin: ")
	if len(got) != 2 || got[0] != "preempted 1" || got[1] != "preempted 2" {
		t.Fatalf("expected two preemptions, got %v", got)
	}
	if sys.irqs.Count(arch.VectorTimer) == 0 {
		t.Fatal("expected timer interrupts")
	}
}

func TestStopPowersOffEndlessDemos(t *testing.T) {
	h := newTestHAL()
	sys := newTestSystem(t, h, testConfig(DemoRoundRobin))

	go func() {
		for len(h.log.with("rr: ")) < 30 {
			time.Sleep(time.Millisecond)
		}
		sys.Stop()
	}()
	runSystem(t, sys)
}

func TestUserModeDemos(t *testing.T) {
	h := newTestHAL()
	cfg := testConfig(DemoRoundRobin)
	cfg.User = true
	cfg.Rounds = 1
	sys := newTestSystem(t, h, cfg)

	s := sys.Scheduler()
	for _, id := range s.Ready() {
		if mode := s.Task(id).Context().Mode(); mode != arch.PrivilegeUser {
			t.Fatalf("expected task %d in user mode, got %v", id, mode)
		}
	}
	runSystem(t, sys)
	if got := strings.Join(h.log.with("rr: "), ""); got != "123" {
		t.Fatalf("expected 123, got %q", got)
	}
}

func TestNewFromCmdline(t *testing.T) {
	h := newTestHAL()
	if _, err := NewFromCmdline(h, "demo=bogus"); err == nil {
		t.Fatal("expected error for unknown demo")
	}
	sys, err := NewFromCmdline(h, "demo=rr rounds=1 banner=false")
	if err != nil {
		t.Fatalf("NewFromCmdline: %v", err)
	}
	// Three printers and the monitor.
	if n := len(sys.Scheduler().Ready()); n != 4 {
		t.Fatalf("expected 4 ready tasks, got %d", n)
	}
}
