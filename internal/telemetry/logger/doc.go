// Package logger provides structured logging for SightingDB.
//
// It wraps log/slog behind the Logger interface:
//
//   - logger.go: handler setup, dynamic level, package-level helpers
//   - context.go: context propagation of loggers and request IDs
//   - redact.go: masking of API keys and credentials
//
// API keys end up in log attributes in two shapes: generated keys carry
// the sdbk_ prefix, and every key appears as a segment of its ACL
// namespace (_config/acl/apikeys/<key>). Both are masked before a record
// reaches the handler.
package logger
