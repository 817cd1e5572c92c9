// Package slogadapters provides log/slog adapters for the warehouse
// observability interfaces, for users who want plug-and-play logging
// without implementing the interfaces themselves.
package slogadapters

import (
	"log/slog"

	"github.com/Mj37-com/medallion-warehouse-go/warehouse"
)

// SlogLogger implements warehouse.Logger backed by Go's standard log/slog
// package. This is the recommended implementation for applications that
// already configure a slog.Handler for the rest of their logging.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger creates a warehouse logger that delegates to the given
// slog.Logger. Passing nil delegates to slog.Default().
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}

	return &SlogLogger{logger: logger}
}

// NewSlogLoggerWithHandler creates a warehouse logger using the provided
// slog.Handler directly.
func NewSlogLoggerWithHandler(handler slog.Handler) *SlogLogger {
	return &SlogLogger{logger: slog.New(handler)}
}

// Debug logs a debug message.
func (l *SlogLogger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, args...)
}

// Info logs an info message.
func (l *SlogLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, args...)
}

// Warn logs a warning message.
func (l *SlogLogger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, args...)
}

// Error logs an error message.
func (l *SlogLogger) Error(msg string, args ...any) {
	l.logger.Error(msg, args...)
}

// Ensure SlogLogger implements warehouse.Logger.
var _ warehouse.Logger = (*SlogLogger)(nil)
