/*
Package filesystem provides resilient filesystem operations with automatic retry logic
for NFS stale file handle errors.

# Purpose

Scratch directories are often mounted from network storage in container
deployments. Reading an artifact immediately after ffmpeg wrote it can hit
ESTALE (stale file handle) on such mounts, so the transcoder and the delivery
strategist go through these wrappers instead of calling os directly.

# Usage

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())

	data, err := filesystem.ReadFileWithRetry(path, filesystem.DefaultRetryConfig())

# Retry Behavior

  - MaxRetries: 3 attempts
  - InitialBackoff: 50ms, doubled per attempt
  - MaxBackoff: 500ms

Only ESTALE triggers retries. All other errors fail immediately.

# Metrics

Retry counters are reported through an Observer set once at startup with
SetObserver. The metrics package supplies the Prometheus implementation; a nil
observer (the default, and the case in tests) records nothing.
*/
package filesystem
