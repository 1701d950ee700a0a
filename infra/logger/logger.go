// Package logger provides the zerolog-backed implementation of the core
// logging interface. Components obtain a named logger through New.
package logger

import corelogger "github.com/homefixr/dispatch/core/logger"

// Logger is the core logging interface re-exported for infra packages.
type Logger = corelogger.Logger

// NopLogger discards everything. Useful as a test default.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any)         {}
func (NopLogger) Debugw(string, map[string]any) {}
func (NopLogger) Infof(string, ...any)          {}
func (NopLogger) Warnf(string, ...any)          {}
func (NopLogger) Errorf(string, ...any)         {}

// New returns a component-tagged logger. The output format follows the
// DISPATCH_ENV environment variable.
func New(component string) Logger {
	return NewZerologLogger(component)
}
