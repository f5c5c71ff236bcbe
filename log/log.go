// Package log provides structured logging for the verifier. It wraps
// go.uber.org/zap with a thin, Ethereum-client-flavored API: a Logger
// offering Module() to derive per-subsystem child loggers, matching
// the shape used across the component packages (execution, blockgen,
// netlearner, rpcapi).
package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with verifier-specific conveniences.
type Logger struct {
	inner *zap.Logger
}

var defaultLogger *Logger

func init() {
	defaultLogger = New(zapcore.InfoLevel)
}

// New creates a Logger that writes JSON to stderr at the given level.
func New(level zapcore.Level) *Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	z, err := cfg.Build()
	if err != nil {
		z = zap.NewNop()
	}
	return &Logger{inner: z}
}

// NewWithCore creates a Logger backed by the supplied zapcore.Core,
// useful for tests that want to capture output.
func NewWithCore(core zapcore.Core) *Logger {
	return &Logger{inner: zap.New(core)}
}

// SetDefault replaces the package-level default logger.
func SetDefault(l *Logger) {
	if l != nil {
		defaultLogger = l
	}
}

// Default returns the current package-level default logger.
func Default() *Logger { return defaultLogger }

// Module returns a child logger tagged with the given subsystem name,
// e.g. log.Module("execution"), log.Module("blockgen").
func (l *Logger) Module(name string) *Logger {
	return &Logger{inner: l.inner.With(zap.String("module", name))}
}

// With returns a child logger with additional structured fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{inner: l.inner.With(fields...)}
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.inner.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.inner.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.inner.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.inner.Error(msg, fields...) }

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error { return l.inner.Sync() }

// Package-level convenience functions, delegating to the default logger.

// Module returns a child of the default logger tagged with the given
// subsystem name, e.g. log.Module("execution"), log.Module("blockgen").
func Module(name string) *Logger { return defaultLogger.Module(name) }

func Debug(msg string, fields ...zap.Field) { defaultLogger.Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { defaultLogger.Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { defaultLogger.Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { defaultLogger.Error(msg, fields...) }
