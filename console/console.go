// Package console is the framebuffer text console. It is also a log sink.
package console

import (
	"sync"

	"ember/hal"

	"tinygo.org/x/tinyfont/proggy"
	"tinygo.org/x/tinyterm"
)

// Console renders text onto a framebuffer through a terminal emulator.
// A console without a usable framebuffer discards everything.
type Console struct {
	mu    sync.Mutex
	fb    hal.Framebuffer
	d     *fbDisplay
	t     *tinyterm.Terminal
	lines uint64
}

func New(fb hal.Framebuffer) *Console {
	c := &Console{fb: fb, d: newFBDisplay(fb)}
	if c.d.usable() {
		c.reset()
	}
	return c
}

func (c *Console) reset() {
	c.d.scroll = 0
	c.t = tinyterm.NewTerminal(c.d)
	c.t.Configure(&tinyterm.Config{
		Font:       &proggy.TinySZ8pt7b,
		FontHeight: 10,
		FontOffset: 6,
	})
	c.fb.ClearRGB(0, 0, 0)
	_ = c.fb.Present()
}

// Write puts raw bytes on the terminal and presents the frame.
func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.t == nil {
		return len(p), nil
	}
	n, err := c.t.Write(p)
	_ = c.d.Display()
	return n, err
}

func (c *Console) WriteLineString(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines++
	if c.t == nil {
		return
	}
	_, _ = c.t.Write([]byte(s))
	_, _ = c.t.Write([]byte("\r\n"))
	_ = c.d.Display()
}

func (c *Console) WriteLineBytes(b []byte) {
	c.WriteLineString(string(b))
}

// Clear blanks the screen and homes the cursor.
func (c *Console) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.t != nil {
		c.reset()
	}
}

// Lines returns the number of lines written.
func (c *Console) Lines() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lines
}
