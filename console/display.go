package console

import (
	"image/color"

	"ember/hal"

	"tinygo.org/x/drivers"
)

// fbDisplay draws into a RGB565 framebuffer and emulates the vertical
// scroll register of a panel controller: row y is stored scroll rows
// further up, so the framebuffer always shows the terminal top first.
type fbDisplay struct {
	fb     hal.Framebuffer
	scroll int
	tmp    []byte
}

func newFBDisplay(fb hal.Framebuffer) *fbDisplay {
	return &fbDisplay{fb: fb}
}

func (d *fbDisplay) usable() bool {
	return d.fb != nil && d.fb.Format() == hal.PixelFormatRGB565 && d.fb.Buffer() != nil &&
		d.fb.Width() > 0 && d.fb.Height() > 0
}

func (d *fbDisplay) Size() (x, y int16) {
	if d.fb == nil {
		return 0, 0
	}
	return int16(d.fb.Width()), int16(d.fb.Height())
}

// row maps a panel row to a framebuffer row.
func (d *fbDisplay) row(y int) int {
	h := d.fb.Height()
	return ((y-d.scroll)%h + h) % h
}

func (d *fbDisplay) SetPixel(x, y int16, c color.RGBA) {
	if !d.usable() {
		return
	}
	w, h := d.fb.Width(), d.fb.Height()
	ix, iy := int(x), int(y)
	if ix < 0 || ix >= w || iy < 0 || iy >= h {
		return
	}
	off := d.row(iy)*d.fb.StrideBytes() + ix*2
	hal.PutRGB565(d.fb.Buffer(), off, hal.RGB565(c.R, c.G, c.B))
}

func (d *fbDisplay) Display() error {
	if d.fb == nil {
		return nil
	}
	return d.fb.Present()
}

func (d *fbDisplay) FillRectangle(x, y, width, height int16, c color.RGBA) error {
	if !d.usable() {
		return nil
	}
	buf := d.fb.Buffer()
	w, h := d.fb.Width(), d.fb.Height()

	x0 := clampInt(int(x), 0, w)
	y0 := clampInt(int(y), 0, h)
	x1 := clampInt(int(x)+int(width), 0, w)
	y1 := clampInt(int(y)+int(height), 0, h)
	if x0 >= x1 || y0 >= y1 {
		return nil
	}

	pixel := hal.RGB565(c.R, c.G, c.B)
	stride := d.fb.StrideBytes()
	for py := y0; py < y1; py++ {
		row := d.row(py) * stride
		for px := x0; px < x1; px++ {
			hal.PutRGB565(buf, row+px*2, pixel)
		}
	}
	return nil
}

// SetScroll makes panel row line the top of the screen. The framebuffer is
// rotated so it keeps showing the screen top first.
func (d *fbDisplay) SetScroll(line int16) {
	if !d.usable() {
		return
	}
	h := d.fb.Height()
	delta := ((int(line)-d.scroll)%h + h) % h
	d.scroll = ((int(line) % h) + h) % h
	if delta == 0 {
		return
	}

	buf := d.fb.Buffer()
	stride := d.fb.StrideBytes()
	n := h * stride
	if len(buf) < n {
		n = len(buf)
	}
	if cap(d.tmp) < n {
		d.tmp = make([]byte, n)
	}
	tmp := d.tmp[:n]
	copy(tmp, buf[:n])
	split := delta * stride
	copy(buf, tmp[split:])
	copy(buf[n-split:], tmp[:split])
}

func (d *fbDisplay) SetRotation(rotation drivers.Rotation) error {
	_ = rotation
	return nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
