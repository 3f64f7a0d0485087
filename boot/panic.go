package boot

import (
	"fmt"
	"strings"

	"ember/console"
	"ember/hal"
	"ember/kernel"
)

// maxPanicStackLines bounds the stack dump on the console; the log gets
// all of it.
const maxPanicStackLines = 12

func installPanicHandler(h hal.HAL, con *console.Console) {
	kernel.SetPanicHandler(func(info kernel.PanicInfo) {
		head := fmt.Sprintf("KERNEL PANIC: task=%d: %v", info.TaskID, info.Value)
		var stack []string
		for _, line := range strings.Split(string(info.Stack), "\n") {
			if line != "" {
				stack = append(stack, line)
			}
		}

		if l := h.Logger(); l != nil {
			l.WriteLineString(head)
			for _, line := range stack {
				l.WriteLineString(line)
			}
		}

		con.Clear()
		con.WriteLineString(head)
		for i, line := range stack {
			if i == maxPanicStackLines {
				con.WriteLineString("...")
				break
			}
			con.WriteLineString(strings.TrimSpace(line))
		}
	})
}
