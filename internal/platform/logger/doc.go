// Package logger provides structured logging functionality for the application.
//
// It builds log/slog loggers with a runtime-adjustable level, carries
// request-scoped loggers through a context, and offers helpers for capturing
// log output in tests.
package logger
