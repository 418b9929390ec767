// Package handlers provides the HTTP handlers for the bot's ops server.
//
// It includes handlers for:
//   - Health, liveness and readiness probes
//   - Version and build information
//   - Prometheus metrics
package handlers
