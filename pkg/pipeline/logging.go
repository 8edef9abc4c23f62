package pipeline

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Field represents a structured logging field
type Field struct {
	Key   string
	Value interface{}
}

// String creates a string field
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an integer field
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates an int64 field
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a boolean field
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a duration field
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Error creates an error field
func Error(err error) Field {
	return Field{Key: "error", Value: err}
}

// Any creates a field with any value
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Logger defines the interface for structured logging
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

// LoggingConfig contains configuration for logging
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Output io.Writer
}

// StructuredLogger implements Logger on top of zerolog.
type StructuredLogger struct {
	zl zerolog.Logger
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(config LoggingConfig) *StructuredLogger {
	level, err := zerolog.ParseLevel(strings.ToLower(config.Level))
	if err != nil || config.Level == "" {
		level = zerolog.InfoLevel
	}

	out := config.Output
	if out == nil {
		out = os.Stdout
	}
	if config.Format == "console" || config.Format == "text" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "2006-01-02 15:04:05.000"}
	}

	zl := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return &StructuredLogger{zl: zl}
}

// Debug logs a debug message
func (l *StructuredLogger) Debug(msg string, fields ...Field) {
	l.write(l.zl.Debug(), msg, fields)
}

// Info logs an info message
func (l *StructuredLogger) Info(msg string, fields ...Field) {
	l.write(l.zl.Info(), msg, fields)
}

// Warn logs a warning message
func (l *StructuredLogger) Warn(msg string, fields ...Field) {
	l.write(l.zl.Warn(), msg, fields)
}

// Error logs an error message
func (l *StructuredLogger) Error(msg string, fields ...Field) {
	l.write(l.zl.Error(), msg, fields)
}

// With creates a new logger with additional fields
func (l *StructuredLogger) With(fields ...Field) Logger {
	ctx := l.zl.With()
	for _, f := range fields {
		ctx = appendContext(ctx, f)
	}
	return &StructuredLogger{zl: ctx.Logger()}
}

func (l *StructuredLogger) write(ev *zerolog.Event, msg string, fields []Field) {
	if ev == nil {
		return
	}
	for _, f := range fields {
		ev = appendEvent(ev, f)
	}
	ev.Msg(msg)
}

func appendEvent(ev *zerolog.Event, f Field) *zerolog.Event {
	switch v := f.Value.(type) {
	case string:
		return ev.Str(f.Key, v)
	case int:
		return ev.Int(f.Key, v)
	case int64:
		return ev.Int64(f.Key, v)
	case bool:
		return ev.Bool(f.Key, v)
	case time.Duration:
		return ev.Dur(f.Key, v)
	case error:
		return ev.AnErr(f.Key, v)
	case []string:
		return ev.Strs(f.Key, v)
	default:
		return ev.Interface(f.Key, v)
	}
}

func appendContext(ctx zerolog.Context, f Field) zerolog.Context {
	switch v := f.Value.(type) {
	case string:
		return ctx.Str(f.Key, v)
	case int:
		return ctx.Int(f.Key, v)
	case bool:
		return ctx.Bool(f.Key, v)
	default:
		return ctx.Interface(f.Key, v)
	}
}

// NullLogger creates a logger that discards all output (useful for testing)
func NullLogger() Logger {
	return &StructuredLogger{zl: zerolog.Nop()}
}

// StdLogAdapter routes the standard log package through a Logger.
type StdLogAdapter struct {
	logger Logger
}

// NewStdLogAdapter creates a new adapter for the standard log package
func NewStdLogAdapter(logger Logger) *StdLogAdapter {
	return &StdLogAdapter{logger: logger}
}

// Write implements io.Writer to capture standard log output
func (a *StdLogAdapter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		a.logger.Info(msg)
	}
	return len(p), nil
}
