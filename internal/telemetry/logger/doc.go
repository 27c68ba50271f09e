// Package logger builds the application's structured loggers.
//
// It configures log/slog with level, format, and output selection,
// redacts sensitive attribute values, and carries request-scoped
// loggers through contexts:
//
//   - logger.go: handler construction and dynamic level control
//   - context.go: context plumbing for loggers and request IDs
//   - redact.go: sensitive attribute redaction
package logger
