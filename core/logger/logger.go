// Package logger defines the logging interface the engine depends on. Core
// packages never import a concrete logging library.
package logger

// Logger is the severity-leveled logging contract used across the engine.
type Logger interface {
	Debugf(format string, args ...any)
	// Debugw logs a debug message with structured fields attached.
	Debugw(msg string, fields map[string]any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}
