//go:build !tinygo

package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"

	"ember/boot"
	"ember/hal"
	"ember/internal/trust"
)

func main() {
	var cfg hal.HeadlessConfig
	var cmdline string
	flag.BoolVar(&cfg.Enabled, "headless", false, "Run without a window.")
	flag.IntVar(&cfg.Hz, "hz", 1000, "Timer rate in headless mode.")
	flag.Uint64Var(&cfg.Ticks, "ticks", 0, "Power off after N ticks in headless mode (0 = run forever).")
	flag.BoolVar(&cfg.TTY, "tty", false, "Read keys from the terminal in headless mode.")
	flag.StringVar(&cmdline, "cmdline", "", "Kernel command line, e.g. \"demo=rr,sem rounds=5 log=debug\".")
	flag.Parse()

	// Reject a bad command line before a window opens.
	if _, err := boot.ParseCmdline(cmdline); err != nil {
		trust.Fatalf(2, "%v", err)
	}
	newKernel := func(h hal.HAL) (hal.Kernel, error) {
		return boot.NewFromCmdline(h, cmdline)
	}

	if cfg.Enabled {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if err := hal.RunHeadless(ctx, newKernel, cfg); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			trust.Fatalf(1, "%v", err)
		}
		return
	}

	if err := hal.RunWindow(newKernel); err != nil {
		trust.Fatalf(1, "%v", err)
	}
}
