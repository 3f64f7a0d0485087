//go:build !tinygo

package hal

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// HeadlessConfig controls the no-window host runner.
type HeadlessConfig struct {
	Enabled bool
	Hz      int
	Ticks   uint64
	// TTY reads keys from the controlling terminal.
	TTY bool
}

// RunHeadless runs the kernel without opening a window. The timer is
// stepped cfg.Hz times per second until ctx is cancelled, cfg.Ticks steps
// have passed, or the kernel powers off.
func RunHeadless(ctx context.Context, newKernel func(HAL) (Kernel, error), cfg HeadlessConfig) error {
	if cfg.Hz <= 0 {
		cfg.Hz = 1000
	}
	d := time.Second / time.Duration(cfg.Hz)
	if d <= 0 {
		return fmt.Errorf("invalid headless hz: %d", cfg.Hz)
	}

	h := newHost()
	if cfg.TTY {
		kbd, err := openTTYKeyboard(h.kbd)
		if err != nil {
			return err
		}
		defer kbd.Close()
		go kbd.pump()
	}

	k, err := newKernel(h)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer cancel()
		return k.Run()
	})
	g.Go(func() error {
		<-gctx.Done()
		k.Stop()
		return nil
	})
	g.Go(func() error {
		t := time.NewTicker(d)
		defer t.Stop()

		var tick uint64
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-t.C:
				h.t.step(1)
				tick++
				if cfg.Ticks > 0 && tick >= cfg.Ticks {
					cancel()
					return nil
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
