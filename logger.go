package hotswap

// Logger defines the interface for structured logging with key-value pairs.
// All core operations (transitions, swap phases, listener failures) are
// logged through this interface so the embedding application controls how
// the output appears.
//
// The variadic arguments are alternating key-value pairs, compatible with
// slog, logrus, zap sugared loggers, and similar libraries:
//
//	logger.Info("Hot swap completed", "module", "cache", "version", "2.1.0")
type Logger interface {
	// Info logs an informational message with optional key-value pairs.
	Info(msg string, args ...any)

	// Error logs an error message with optional key-value pairs.
	Error(msg string, args ...any)

	// Warn logs a warning message with optional key-value pairs.
	Warn(msg string, args ...any)

	// Debug logs a debug message with optional key-value pairs.
	Debug(msg string, args ...any)
}

// noopLogger discards everything. Used when a service is constructed with a
// nil logger so the rest of the code never nil-checks.
type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Debug(string, ...any) {}

// ensureLogger substitutes the no-op logger for nil.
func ensureLogger(logger Logger) Logger {
	if logger == nil {
		return noopLogger{}
	}
	return logger
}
