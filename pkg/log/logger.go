package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Logger provides structured logging capabilities.
// Implementations can wrap zerolog, zap, logrus, or any other logging library.
type Logger interface {
	// Debug logs a debug-level message with fields.
	Debug(msg string, fields ...Field)

	// Info logs an info-level message with fields.
	Info(msg string, fields ...Field)

	// Warn logs a warning-level message with fields.
	Warn(msg string, fields ...Field)

	// Error logs an error-level message with fields.
	Error(msg string, fields ...Field)
}

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value interface{}
}

// String creates a string field.
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an int field.
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates an int64 field.
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a bool field.
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a duration field.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Err creates an error field with key "error".
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

// Any creates a field with any value.
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Backends accepted by New.
const (
	BackendZerolog = "zerolog"
	BackendZap     = "zap"
	BackendNoop    = "noop"
)

// Options selects and configures a logging backend.
type Options struct {
	// Backend is one of "zerolog" (default), "zap" or "noop".
	Backend string

	// Format is "console" (default) or "json".
	Format string

	// Level is "debug", "info" (default), "warn" or "error".
	Level string

	// Out defaults to os.Stderr.
	Out io.Writer
}

// New builds a Logger from opts.
func New(opts Options) (Logger, error) {
	if opts.Out == nil {
		opts.Out = os.Stderr
	}
	if opts.Format == "" {
		opts.Format = "console"
	}
	if opts.Format != "console" && opts.Format != "json" {
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}
	level := strings.ToLower(opts.Level)
	if level == "" {
		level = "info"
	}
	switch level {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("unknown log level %q", opts.Level)
	}

	switch strings.ToLower(opts.Backend) {
	case "", BackendZerolog:
		return newZerolog(opts.Out, opts.Format, level), nil
	case BackendZap:
		return newZap(opts.Out, opts.Format, level), nil
	case BackendNoop:
		return NewNoopLogger(), nil
	default:
		return nil, fmt.Errorf("unknown log backend %q", opts.Backend)
	}
}
