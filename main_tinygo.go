//go:build tinygo

package main

import (
	"ember/boot"
	"ember/hal"
	"ember/internal/trust"
)

// cmdline is set at build time via -ldflags "-X main.cmdline=...".
var cmdline = "demo=all"

func main() {
	sys, err := boot.NewFromCmdline(hal.New(), cmdline)
	if err != nil {
		trust.Fatalf(1, "%v", err)
	}
	if err := sys.Run(); err != nil {
		trust.Fatalf(1, "%v", err)
	}
}
