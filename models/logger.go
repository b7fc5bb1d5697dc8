package models

// Logger is the minimal logging surface components depend on. The default
// implementation wraps log/slog; tests substitute a no-op.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
