// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// This package centralizes all application configuration and provides consistent
// logging throughout the application lifecycle.
//
// # Configuration
//
// Configuration is loaded via [LoadConfig]. Settings may be seeded from a TOML
// file (the --config flag or CONFIG_FILE); environment variables always win
// over the file. Invalid values are logged and replaced by their defaults.
//
//   - TELEGRAM_TOKEN (or BOT_TOKEN): Bot API token, required
//   - TELEGRAM_API_ENDPOINT: Bot API endpoint template (default: api.telegram.org)
//   - SCRATCH_DIR: Root for per-request workspaces (default: $TMPDIR/gifbot)
//   - LOCK_FILE: Single-instance lock file (default: <scratch>/gifbot.lock)
//   - MAX_INPUT_BYTES: Largest accepted source clip (default: 20 MiB)
//   - MAX_OUTPUT_BYTES: Largest deliverable GIF (default: 50 MiB)
//   - MAX_DURATION: Output duration cap, seconds or Go duration (default: 10s)
//   - MAX_WIDTH: Output width cap in pixels (default: 480)
//   - TARGET_FPS: Output frame rate ceiling (default: 15)
//   - OPERATION_TIMEOUT: Per-stage time budget (default: 120s)
//   - MAX_CONCURRENT_CONVERSIONS: Parallel conversions (default: CPUs, max 4)
//   - FFMPEG_PATH, FFPROBE_PATH: Encoder binaries (default: ffmpeg, ffprobe)
//   - METRICS_ENABLED: Enable or disable the ops server (default: true)
//   - METRICS_PORT: Ops server port (default: 9090)
//   - LOG_LEVEL: Logging level - debug, info, warn, error (default: info)
//
// The matching TOML keys live under the [telegram], [paths], [limits],
// [encoder] and [metrics] tables.
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo]:
//   - Version: Application version
//   - Commit: Git commit hash
//   - BuildTime: Build timestamp
//   - GoVersion: Go compiler version
//
// # Lifecycle Logging
//
// The package provides logging functions for consistent output:
//   - [LogWorkspaceInit]: Scratch root and stale workspace sweep
//   - [LogTranscoderInit]: FFmpeg and FFprobe availability
//   - [LogBotConnected]: Authenticated bot identity
//   - [LogHTTPRoutes]: Registered ops routes (debug level)
//   - [LogServerStarted]: Limits, concurrency and ops endpoints
//   - [LogShutdownInitiated]: Graceful shutdown start
//   - [LogShutdownComplete]: Shutdown completion
//
// # Example Usage
//
//	config, err := startup.LoadConfig(configPath)
//	if err != nil {
//	    startup.LogFatal("Configuration error: %v", err)
//	}
//
//	lock, err := startup.AcquireInstanceLock(config.LockFile)
//	if err != nil {
//	    startup.LogFatal("%v", err)
//	}
//	defer lock.Unlock()
//
//	// On shutdown...
//	startup.LogShutdownInitiated("SIGTERM")
//	// ... cleanup ...
//	startup.LogShutdownComplete()
package startup
