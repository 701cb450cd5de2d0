package safe

import (
	"log/slog"
	"runtime/debug"
	"strings"
)

const maxStackLines = 40

// Run executes fn and converts a panic into an error log entry.
func Run(fn func()) {
	RunWithLog(fn, "safe.Run")
}

// RunWithLog behaves like Run but tags the log entry with component.
func RunWithLog(fn func(), component string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic recovered",
				slog.Any("recover", r),
				slog.String("component", component),
				slog.String("stack", stack()),
			)
		}
	}()

	fn()
}

// Go starts fn on a new goroutine guarded by RunWithLog.
func Go(component string, fn func()) {
	go RunWithLog(fn, component)
}

func stack() string {
	lines := strings.Split(string(debug.Stack()), "\n")
	if len(lines) > maxStackLines {
		lines = append(lines[:maxStackLines], "... (truncated)")
	}
	return strings.Join(lines, "\n")
}
