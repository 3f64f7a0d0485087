//go:build tinygo

package boot

import "ember/kernel/arch"

func newMachine() Machine { return arch.Bare{} }
