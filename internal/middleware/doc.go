// Package middleware provides HTTP middleware for the bot's ops server.
//
// It includes:
//   - Request logging in W3C Extended Log Format
//   - Prometheus request counters and latency histograms
package middleware
