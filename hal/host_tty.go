//go:build !tinygo

package hal

import (
	tty "github.com/mattn/go-tty"
)

// ttyKeyboard feeds runes typed on the controlling terminal into the host
// keyboard, for headless runs.
type ttyKeyboard struct {
	io      *tty.TTY
	restore func() error
	kbd     *hostKeyboard
}

func openTTYKeyboard(kbd *hostKeyboard) (*ttyKeyboard, error) {
	t, err := tty.Open()
	if err != nil {
		return nil, err
	}
	restore, err := t.Raw()
	if err != nil {
		t.Close()
		return nil, err
	}
	return &ttyKeyboard{io: t, restore: restore, kbd: kbd}, nil
}

func (k *ttyKeyboard) pump() {
	for {
		r, err := k.io.ReadRune()
		if err != nil {
			return
		}
		k.kbd.push(runeEvent(r))
	}
}

func (k *ttyKeyboard) Close() error {
	if k.restore != nil {
		_ = k.restore()
	}
	return k.io.Close()
}

// runeEvent maps a terminal rune to a key press.
func runeEvent(r rune) KeyEvent {
	switch r {
	case '\r', '\n':
		return KeyEvent{Code: KeyEnter, Press: true, Rune: '\n'}
	case 0x1b:
		return KeyEvent{Code: KeyEscape, Press: true}
	case 0x7f, 0x08:
		return KeyEvent{Code: KeyBackspace, Press: true}
	case '\t':
		return KeyEvent{Code: KeyTab, Press: true, Rune: '\t'}
	}
	return KeyEvent{Press: true, Rune: r}
}
