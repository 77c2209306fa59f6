// Package log provides a logging abstraction for possync components.
//
// This package defines a Logger interface that can be implemented by
// any logging library. Adapters are provided for zerolog (the CLI default),
// zap, and a no-op logger for embedding and tests.
//
// # Usage
//
// Build a logger from CLI-style options:
//
//	logger, err := log.New(log.Options{Backend: "zerolog", Format: "json", Level: "info"})
//
// Or wrap an existing logger:
//
//	logger := log.NewZerologAdapterWithLogger(zerolog.New(os.Stderr))
//	logger := log.NewZapAdapter(zap.NewExample())
//
// # Custom Loggers
//
// Implement the Logger interface to integrate with your existing
// logging infrastructure:
//
//	type MyLogger struct { ... }
//
//	func (l *MyLogger) Debug(msg string, fields ...log.Field) { ... }
//	func (l *MyLogger) Info(msg string, fields ...log.Field) { ... }
//	func (l *MyLogger) Warn(msg string, fields ...log.Field) { ... }
//	func (l *MyLogger) Error(msg string, fields ...log.Field) { ... }
package log
