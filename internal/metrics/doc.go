// Package metrics declares the Prometheus metrics exported by the bot.
//
// Metrics are registered with the default registry through promauto at
// package init, so importing the package is enough to make them visible on
// the /metrics endpoint. Call InitializeMetrics once at startup so every
// expected label combination is exported from the first scrape.
//
// # Metric families
//
//   - gifbot_requests_*: per-request outcomes and in-flight count
//   - gifbot_stage_duration_seconds: download, convert, deliver and total timings
//   - gifbot_delivery_attempts_total: one increment per delivery method tried
//   - gifbot_transcode_*: encode profile fallbacks and output sizes
//   - gifbot_workspaces_active, gifbot_scratch_*: scratch storage usage
//   - gifbot_http_*: the ops HTTP server
//   - gifbot_filesystem_retry_*: NFS stale handle retries
//
// The Collector samples scratch usage periodically; everything else is
// updated inline by the component that owns the event.
package metrics
