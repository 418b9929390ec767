// Package logging provides a simple leveled logging interface for the
// GIF conversion bot.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The log level is configured via the LOG_LEVEL environment variable, or
// DEBUG=true as a shortcut. Level prefixes are colored when standard error
// is a terminal and NO_COLOR is unset.
//
// Per-request lines use a Scoped logger so every message from one
// conversion carries the same short request tag:
//
//	log := logging.ForRequest(req.ID)
//	log.Info("downloaded %d bytes", n)
package logging
