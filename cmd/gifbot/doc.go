// Package main provides the entry point for gifbot.
//
// gifbot is a Telegram bot that turns short video clips into bounded
// animated GIFs and sends them back to the chat they came from.
//
// # Application Lifecycle
//
//  1. Memory Configuration: Sets GOMEMLIMIT from MEMORY_LIMIT
//  2. Configuration Loading: TOML file (--config) overlaid by environment
//  3. Instance Lock: Refuses to start when another bot holds the lock file
//  4. Component Initialization:
//     - Workspace Manager: Scratch root, stale workspace sweep
//     - libvips: Dimension probing for delivery metadata
//     - Transcoder: ffprobe/ffmpeg with palette and simple profiles
//     - Delivery Strategist: animation, typed animation, document
//     - Memory Monitor: Holds back new conversions under memory pressure
//     - Telegram Bot: Authenticates the token and long-polls for updates
//     - Metrics Collector: Samples scratch usage
//  5. Ops Server: Health, readiness, version and Prometheus metrics
//  6. Graceful Shutdown: SIGINT/SIGTERM cancels in-flight requests, stops
//     the ops server and kills leftover encoder processes
//
// # Commands
//
//	gifbot [--config gifbot.toml]
//	gifbot version [--json]
//
// # Ops Server
//
// When METRICS_ENABLED is true the ops server listens on METRICS_PORT:
//
//   - /healthz, /health: Detailed health (503 until the bot is polling)
//   - /livez: Liveness probe
//   - /readyz: Readiness (bot polling and encoder binaries present)
//   - /version: Build information
//   - /metrics: Prometheus metrics
//
// See [gifbot/internal/startup] for the full list of settings.
//
// # Runtime Requirements
//
//   - ffmpeg and ffprobe on PATH (or FFMPEG_PATH / FFPROBE_PATH)
//   - libvips for the govips bindings (CGO)
package main
