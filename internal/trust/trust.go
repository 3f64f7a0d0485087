// Package trust is the kernel's leveled logger. Lines go to a Sink; until one
// is installed they go to standard error.
package trust

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// Sink receives complete log lines without a trailing newline.
type Sink interface {
	WriteLineString(s string)
}

type MaskLevel int

const (
	Nothing   MaskLevel = 0x0
	ErrorMask MaskLevel = 0x1
	WarnMask  MaskLevel = 0x2
	InfoMask  MaskLevel = 0x4
	DebugMask MaskLevel = 0x8
	StatsMask MaskLevel = 0x10
	fatalMask MaskLevel = 0x80
)

var (
	mu    sync.Mutex
	level = fatalMask | StatsMask | ErrorMask | WarnMask | InfoMask
	sinks []Sink
	exit  = os.Exit
)

type stderrSink struct{}

func (stderrSink) WriteLineString(s string) { fmt.Fprintln(os.Stderr, s) }

// SetSink replaces all sinks. Passing none restores standard error.
func SetSink(s ...Sink) {
	mu.Lock()
	defer mu.Unlock()
	sinks = append([]Sink(nil), s...)
}

// AddSink mirrors log lines to s as well.
func AddSink(s Sink) {
	mu.Lock()
	defer mu.Unlock()
	sinks = append(sinks, s)
}

// SetExit replaces the function Fatalf calls after logging.
func SetExit(fn func(code int)) {
	mu.Lock()
	defer mu.Unlock()
	exit = fn
}

// SetLevel sets the mask. Each level enables every level below it, so
// ErrorMask alone still prints warnings, info, debug and stats; pass the
// least verbose level you want. It returns the previous mask.
func SetLevel(mask MaskLevel) MaskLevel {
	result := Nothing
	switch {
	case mask&ErrorMask > 0:
		result |= ErrorMask
		fallthrough
	case mask&WarnMask > 0:
		result |= WarnMask
		fallthrough
	case mask&InfoMask > 0:
		result |= InfoMask
		fallthrough
	case mask&DebugMask > 0:
		result |= DebugMask
		fallthrough
	case mask&StatsMask > 0:
		result |= StatsMask
	}
	mu.Lock()
	defer mu.Unlock()
	r := level & 0x1f
	level = result | fatalMask
	return r
}

func Level() MaskLevel {
	mu.Lock()
	defer mu.Unlock()
	return level
}

// ParseLevel maps a level name to the mask that prints it and everything
// more severe.
func ParseLevel(name string) (MaskLevel, error) {
	switch strings.ToLower(name) {
	case "none", "off":
		return Nothing, nil
	case "error":
		return ErrorMask, nil
	case "warn", "warning":
		return ErrorMask | WarnMask, nil
	case "info":
		return ErrorMask | WarnMask | InfoMask, nil
	case "debug":
		return ErrorMask | WarnMask | InfoMask | DebugMask, nil
	case "stats", "all":
		return ErrorMask | WarnMask | InfoMask | DebugMask | StatsMask, nil
	}
	return Nothing, fmt.Errorf("unknown log level %q", name)
}

// Allow sets the mask to exactly the given bits plus fatal. Use it with
// ParseLevel; SetLevel widens the mask instead.
func Allow(mask MaskLevel) MaskLevel {
	mu.Lock()
	defer mu.Unlock()
	r := level & 0x1f
	level = (mask & 0x1f) | fatalMask
	return r
}

func LevelToString() string {
	l := Level()
	var parts []string
	for _, p := range []struct {
		m MaskLevel
		s string
	}{{ErrorMask, "error"}, {WarnMask, "warn"}, {InfoMask, "info"}, {DebugMask, "debug"}, {StatsMask, "stats"}} {
		if l&p.m > 0 {
			parts = append(parts, p.s)
		}
	}
	return strings.Join(parts, " ")
}

func logf(l MaskLevel, format string, params ...interface{}) {
	mu.Lock()
	if level&l == 0 {
		mu.Unlock()
		return
	}
	out := sinks
	mu.Unlock()

	var prefix string
	switch {
	case l&fatalMask > 0:
		prefix = "FATAL:"
	case l&ErrorMask > 0:
		prefix = "ERROR:"
	case l&WarnMask > 0:
		prefix = " WARN:"
	case l&InfoMask > 0:
		prefix = " INFO:"
	case l&DebugMask > 0:
		prefix = "DEBUG:"
	case l&StatsMask > 0:
		s, _ := params[0].(string)
		prefix = "STATS[" + s + "]:"
		params = params[1:]
	}
	msg := prefix + " " + strings.TrimRight(fmt.Sprintf(format, params...), "\n")

	if len(out) == 0 {
		stderrSink{}.WriteLineString(msg)
		return
	}
	for _, s := range out {
		s.WriteLineString(msg)
	}
}

// Fatalf logs the message and then exits with exitCode. Fatalf is not
// maskable.
func Fatalf(exitCode int, format string, params ...interface{}) {
	logf(fatalMask, format, params...)
	mu.Lock()
	fn := exit
	mu.Unlock()
	fn(exitCode)
}

// Errorf logs at ErrorMask.
func Errorf(format string, params ...interface{}) {
	logf(ErrorMask, format, params...)
}

// Warnf logs at WarnMask.
func Warnf(format string, params ...interface{}) {
	logf(WarnMask, format, params...)
}

// Infof logs at InfoMask.
func Infof(format string, params ...interface{}) {
	logf(InfoMask, format, params...)
}

// Debugf logs at DebugMask.
func Debugf(format string, params ...interface{}) {
	logf(DebugMask, format, params...)
}

// Statsf logs at StatsMask under a category shown in the prefix.
func Statsf(category string, format string, params ...interface{}) {
	logf(StatsMask, format, append([]interface{}{category}, params...)...)
}
