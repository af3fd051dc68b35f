// Package logging provides structured logging utilities for the outlook-mcp service.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Key Features
//
//   - Structured logging with slog
//   - PII sanitization (user identity anonymization)
//   - Consistent attribute naming across the codebase
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "token.refresh")
//	logger.Info("token refreshed",
//	    logging.Status("success"))
//
// Sanitize sensitive data before logging:
//
//	logger.Info("token lookup",
//	    logging.UserHash(userID))
//
// # Security Considerations
//
// This package is designed with security in mind:
//   - User identifiers are hashed to prevent PII leakage while allowing correlation
//   - Tokens and ciphertext are never logged directly
package logging
