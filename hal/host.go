//go:build !tinygo

package hal

import (
	"fmt"
	"os"
	"sync"

	"ember/kernel/arch"
)

// Framebuffer size of the host display, in pixels.
const (
	HostWidth  = 320
	HostHeight = 240
)

type hostHAL struct {
	logger *hostLogger
	fb     *hostFramebuffer
	kbd    *hostKeyboard
	t      *hostTime
	stacks arch.StackAllocator
}

// New returns a host HAL implementation.
func New() HAL {
	return newHost()
}

func newHost() *hostHAL {
	return &hostHAL{
		logger: &hostLogger{w: os.Stdout},
		fb:     newHostFramebuffer(HostWidth, HostHeight),
		kbd:    newHostKeyboard(),
		t:      newHostTime(),
		stacks: newHostStacks(),
	}
}

func (h *hostHAL) Logger() Logger              { return h.logger }
func (h *hostHAL) Display() Display            { return hostDisplay{fb: h.fb} }
func (h *hostHAL) Input() Input                { return hostInput{kbd: h.kbd} }
func (h *hostHAL) Time() Time                  { return h.t }
func (h *hostHAL) Stacks() arch.StackAllocator { return h.stacks }

type hostDisplay struct {
	fb *hostFramebuffer
}

func (d hostDisplay) Framebuffer() Framebuffer { return d.fb }

type hostInput struct {
	kbd *hostKeyboard
}

func (in hostInput) Keyboard() Keyboard { return in.kbd }

type hostLogger struct {
	mu sync.Mutex
	w  *os.File
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(b)
	l.w.Write([]byte{'\n'})
}

// Kernel is what the host runners drive.
type Kernel interface {
	// Run boots the kernel and blocks until it powers off.
	Run() error
	// Stop powers the kernel off from outside.
	Stop()
}
