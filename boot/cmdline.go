package boot

import (
	"fmt"
	"strconv"
	"strings"

	"ember/internal/trust"
	"ember/kernel/arch"

	"github.com/google/shlex"
)

// Demo names accepted by the demo= option.
const (
	DemoRoundRobin = "rr"
	DemoSemaphore  = "sem"
	DemoKeyboard   = "kbd"
	DemoSpin       = "spin"
)

var allDemos = []string{DemoRoundRobin, DemoSemaphore, DemoKeyboard, DemoSpin}

// Config is the parsed kernel command line.
type Config struct {
	Demos []string
	// Rounds is how many iterations each finite demo runs before the
	// kernel powers off. Zero runs forever.
	Rounds int

	Quantum         int
	Level           trust.MaskLevel
	KernelStackSize int
	UserStackSize   int
	// User spawns demo tasks in user mode.
	User    bool
	Checked bool
	// Banner controls the boot banner on the console.
	Banner bool
}

// DefaultConfig is what an empty command line yields.
func DefaultConfig() Config {
	return Config{
		Demos:           []string{DemoRoundRobin, DemoSemaphore, DemoKeyboard},
		Quantum:         10,
		Level:           trust.ErrorMask | trust.WarnMask | trust.InfoMask,
		KernelStackSize: arch.DefaultKernelStackSize,
		UserStackSize:   arch.DefaultUserStackSize,
		Banner:          true,
	}
}

// ParseCmdline parses a command line of key=value words and bare flags,
// for example:
//
//	demo=rr,sem rounds=5 quantum=2 log=debug checked
func ParseCmdline(line string) (Config, error) {
	cfg := DefaultConfig()
	words, err := shlex.Split(line)
	if err != nil {
		return cfg, fmt.Errorf("cmdline: %w", err)
	}
	for _, w := range words {
		key, val, hasVal := strings.Cut(w, "=")
		switch key {
		case "checked":
			cfg.Checked, err = flagValue(val, hasVal)
		case "user":
			cfg.User, err = flagValue(val, hasVal)
		case "banner":
			cfg.Banner, err = flagValue(val, hasVal)
		case "demo":
			cfg.Demos, err = parseDemos(val)
		case "rounds":
			cfg.Rounds, err = intValue(val, 0)
		case "quantum":
			cfg.Quantum, err = intValue(val, 1)
		case "kstack":
			cfg.KernelStackSize, err = intValue(val, 0)
		case "ustack":
			cfg.UserStackSize, err = intValue(val, 0)
		case "log":
			cfg.Level, err = trust.ParseLevel(val)
		default:
			err = fmt.Errorf("unknown option")
		}
		if err != nil {
			return cfg, fmt.Errorf("cmdline: %s: %w", w, err)
		}
	}
	return cfg, nil
}

func flagValue(val string, hasVal bool) (bool, error) {
	if !hasVal {
		return true, nil
	}
	return strconv.ParseBool(val)
}

func intValue(val string, min int) (int, error) {
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, err
	}
	if n < min {
		return 0, fmt.Errorf("must be at least %d", min)
	}
	return n, nil
}

func parseDemos(val string) ([]string, error) {
	if val == "" || val == "none" {
		return nil, nil
	}
	var out []string
	for _, name := range strings.Split(val, ",") {
		switch name {
		case "all":
			out = append(out, allDemos...)
		case DemoRoundRobin, DemoSemaphore, DemoKeyboard, DemoSpin:
			out = append(out, name)
		default:
			return nil, fmt.Errorf("unknown demo %q", name)
		}
	}
	return out, nil
}

func (c Config) has(demo string) bool {
	for _, d := range c.Demos {
		if d == demo {
			return true
		}
	}
	return false
}
