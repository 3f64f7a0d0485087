package boot

import (
	"reflect"
	"strings"
	"testing"

	"ember/internal/trust"
)

func TestParseCmdlineEmptyIsDefault(t *testing.T) {
	cfg, err := ParseCmdline("")
	if err != nil {
		t.Fatalf("ParseCmdline: %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestParseCmdlineOptions(t *testing.T) {
	cfg, err := ParseCmdline(`demo="rr,spin" rounds=5 quantum=2 log=debug kstack=16384 ustack=4096 checked user=true banner=0`)
	if err != nil {
		t.Fatalf("ParseCmdline: %v", err)
	}
	if !reflect.DeepEqual(cfg.Demos, []string{DemoRoundRobin, DemoSpin}) {
		t.Fatalf("expected [rr spin], got %v", cfg.Demos)
	}
	if cfg.Rounds != 5 || cfg.Quantum != 2 {
		t.Fatalf("expected rounds 5 quantum 2, got %d %d", cfg.Rounds, cfg.Quantum)
	}
	if cfg.KernelStackSize != 16384 || cfg.UserStackSize != 4096 {
		t.Fatalf("expected stack sizes, got %d %d", cfg.KernelStackSize, cfg.UserStackSize)
	}
	if cfg.Level&trust.DebugMask == 0 {
		t.Fatalf("expected debug level, got %#x", cfg.Level)
	}
	if !cfg.Checked || !cfg.User || cfg.Banner {
		t.Fatalf("expected checked user no-banner, got %+v", cfg)
	}
}

func TestParseCmdlineDemoLists(t *testing.T) {
	cfg, err := ParseCmdline("demo=all")
	if err != nil {
		t.Fatalf("ParseCmdline: %v", err)
	}
	if !reflect.DeepEqual(cfg.Demos, allDemos) {
		t.Fatalf("expected all demos, got %v", cfg.Demos)
	}
	cfg, err = ParseCmdline("demo=none")
	if err != nil {
		t.Fatalf("ParseCmdline: %v", err)
	}
	if len(cfg.Demos) != 0 {
		t.Fatalf("expected no demos, got %v", cfg.Demos)
	}
}

func TestParseCmdlineErrors(t *testing.T) {
	for _, line := range []string{
		"bogus=1",
		"demo=rr,chess",
		"quantum=0",
		"rounds=-1",
		"kstack=big",
		"log=loud",
		"checked=maybe",
		`demo="rr`,
	} {
		if _, err := ParseCmdline(line); err == nil {
			t.Fatalf("expected error for %q", line)
		} else if !strings.HasPrefix(err.Error(), "cmdline:") {
			t.Fatalf("expected cmdline error for %q, got %v", line, err)
		}
	}
}
