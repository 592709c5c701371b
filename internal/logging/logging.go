// Package logging wraps a single process-wide zap logger the way the
// rest of the codebase expects to call it: Info/Debug/Warn/Error/Fatal
// with structured zap.Field arguments.
package logging

import "go.uber.org/zap"

var base = mustBuild()

func mustBuild() *zap.Logger {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	return l
}

// SetDebug swaps the base logger for a development logger when debug is
// true; intended to be called once at process startup before any other
// logging calls.
func SetDebug(debug bool) {
	if !debug {
		return
	}
	if l, err := zap.NewDevelopment(); err == nil {
		base = l
	}
}

func Debug(msg string, fields ...zap.Field) { base.Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { base.Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { base.Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { base.Error(msg, fields...) }
func Fatal(msg string, fields ...zap.Field) { base.Fatal(msg, fields...) }

// Sync flushes any buffered log entries; call on clean shutdown.
func Sync() error { return base.Sync() }
