// Package logger wraps golog behind a minimal interface so the rest of the
// engine does not depend on the concrete logging library.
package logger

import (
	"io"

	"github.com/evdnx/golog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Field re-exports golog.Field so callers do not depend on the concrete logger.
type Field = golog.Field

// Logger defines the minimal logging surface used across the engine.
type Logger interface {
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// gologLogger adapts golog.Logger to the local Logger interface.
type gologLogger struct {
	inner *golog.Logger
}

func (l *gologLogger) Info(msg string, fields ...Field) {
	l.inner.Info(msg, fields...)
}

func (l *gologLogger) Warn(msg string, fields ...Field) {
	l.inner.Warn(msg, fields...)
}

func (l *gologLogger) Error(msg string, fields ...Field) {
	l.inner.Error(msg, fields...)
}

// NewLogger creates a production logger wired to golog with JSON output on
// stdout.
func NewLogger() (Logger, error) {
	l, err := golog.NewLogger(
		golog.WithStdOutProvider(golog.JSONEncoder),
		golog.WithLevel(golog.InfoLevel),
	)
	if err != nil {
		return nil, err
	}
	return &gologLogger{inner: l}, nil
}

// NewLoggerAt creates a golog-backed logger at an explicit level, matching
// the --log-level CLI flag of spec.md §6.
func NewLoggerAt(level golog.Level) (Logger, error) {
	l, err := golog.NewLogger(
		golog.WithStdOutProvider(golog.JSONEncoder),
		golog.WithLevel(level),
	)
	if err != nil {
		return nil, err
	}
	return &gologLogger{inner: l}, nil
}

// ParseLevel maps the --log-level flag value to a golog.Level.
func ParseLevel(s string) golog.Level {
	switch s {
	case "debug":
		return golog.DebugLevel
	case "warn":
		return golog.WarnLevel
	case "error":
		return golog.ErrorLevel
	default:
		return golog.InfoLevel
	}
}

// NewRotatingAuditWriter returns an io.Writer backed by lumberjack log
// rotation for a plaintext audit trail. No package in the engine calls it;
// REJECTED orders are recorded through repository.Repository, which
// cmd/trader backs with the in-memory store when no database file is
// given. maxSizeMB, maxBackups, and maxAgeDays
// follow lumberjack's own semantics; zero values fall back to its defaults.
func NewRotatingAuditWriter(path string, maxSizeMB, maxBackups, maxAgeDays int) io.Writer {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}
}

// Structured field helpers re-exported for convenience. Int64 and bool
// values go through Any since golog only exposes String/Int/Float64
// constructors directly.
var (
	String   = golog.String
	Int      = golog.Int
	Float64  = golog.Float64
	Any      = golog.Any
	Err      = golog.Err
	Duration = golog.Duration
)
