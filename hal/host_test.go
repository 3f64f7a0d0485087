//go:build !tinygo

package hal

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeKernel struct {
	stop    chan struct{}
	stopped int
	runErr  error
	quit    bool
}

func newFakeKernel() *fakeKernel { return &fakeKernel{stop: make(chan struct{})} }

func (k *fakeKernel) Run() error {
	if k.quit {
		return k.runErr
	}
	<-k.stop
	return k.runErr
}

func (k *fakeKernel) Stop() {
	k.stopped++
	if k.stopped == 1 {
		close(k.stop)
	}
}

func TestRunHeadlessStopsAfterTicks(t *testing.T) {
	k := newFakeKernel()
	var ticks <-chan uint64
	err := RunHeadless(context.Background(), func(h HAL) (Kernel, error) {
		ticks = h.Time().Ticks()
		return k, nil
	}, HeadlessConfig{Hz: 1000, Ticks: 3})
	if err != nil {
		t.Fatalf("RunHeadless: %v", err)
	}
	if k.stopped == 0 {
		t.Fatal("expected kernel to be stopped")
	}
	select {
	case <-ticks:
	default:
		t.Fatal("expected timer ticks to be emitted")
	}
}

func TestRunHeadlessReturnsKernelError(t *testing.T) {
	boom := errors.New("boom")
	k := newFakeKernel()
	k.quit = true
	k.runErr = boom
	err := RunHeadless(context.Background(), func(HAL) (Kernel, error) { return k, nil }, HeadlessConfig{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestRunHeadlessCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	k := newFakeKernel()
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	err := RunHeadless(ctx, func(HAL) (Kernel, error) { return k, nil }, HeadlessConfig{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestHostTimeDropsWhenFull(t *testing.T) {
	ht := newHostTime()
	ht.stepN(uint64(cap(ht.ch)) + 10)
	if len(ht.ch) != cap(ht.ch) {
		t.Fatalf("expected full channel, got %d", len(ht.ch))
	}
	if first := <-ht.ch; first != 1 {
		t.Fatalf("expected first tick 1, got %d", first)
	}
}

func TestRuneEvent(t *testing.T) {
	if ev := runeEvent('\r'); ev.Code != KeyEnter || ev.Rune != '\n' {
		t.Fatalf("expected enter, got %+v", ev)
	}
	if ev := runeEvent(0x7f); ev.Code != KeyBackspace {
		t.Fatalf("expected backspace, got %+v", ev)
	}
	if ev := runeEvent('x'); ev.Code != KeyUnknown || ev.Rune != 'x' || !ev.Press {
		t.Fatalf("expected rune x, got %+v", ev)
	}
}

func TestFramebufferPresentCountsFrames(t *testing.T) {
	fb := newHostFramebuffer(4, 2)
	fb.ClearRGB(0xff, 0, 0)
	if err := fb.Present(); err != nil {
		t.Fatalf("Present: %v", err)
	}
	dst := make([]byte, len(fb.buf))
	if n := fb.snapshotRGB565(dst); n != 1 {
		t.Fatalf("expected frame 1, got %d", n)
	}
	if p := uint16(dst[0]) | uint16(dst[1])<<8; p != 0xF800 {
		t.Fatalf("expected red pixel 0xF800, got %#x", p)
	}
}
