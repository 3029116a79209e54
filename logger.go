package bcp

import "log/slog"

// Logger receives the engine's log records as a message plus alternating
// keys and values. *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// defaultLogger tags slog.Default with the component that logs through it.
func defaultLogger(component string) Logger {
	return slog.Default().With("component", component)
}
