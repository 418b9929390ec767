package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values shared between the recording sites and InitializeMetrics.
var (
	Outcomes        = []string{"completed", "failed", "rejected"}
	ErrorKinds      = []string{"none", "validation", "timeout", "encode_failed", "delivery_exhausted", "unexpected"}
	Stages          = []string{"download", "convert", "deliver", "total"}
	DeliveryMethods = []string{"animation", "animation_typed", "document"}
	DeliveryResults = []string{"success", "error", "too_large"}
	EncodeProfiles  = []string{"palette", "simple"}
)

// Request metrics
var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gifbot_requests_total",
			Help: "Total number of conversion requests by outcome and error kind",
		},
		[]string{"outcome", "kind"},
	)

	RequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gifbot_requests_in_flight",
			Help: "Number of conversion requests currently being processed",
		},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gifbot_stage_duration_seconds",
			Help:    "Duration of each pipeline stage in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)
)

// Delivery metrics
var (
	DeliveryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gifbot_delivery_attempts_total",
			Help: "Total number of delivery attempts by method and result",
		},
		[]string{"method", "result"},
	)
)

// Transcode metrics
var (
	TranscodeFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gifbot_transcode_fallbacks_total",
			Help: "Total number of failed encode profiles that fell through to the next profile",
		},
		[]string{"profile"},
	)

	TranscodeOutputBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gifbot_output_bytes",
			Help:    "Size of produced animations in bytes",
			Buckets: prometheus.ExponentialBuckets(64*1024, 2, 12),
		},
	)

	TranscodeTrimmed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gifbot_transcode_trimmed_total",
			Help: "Total number of clips cut to the maximum duration",
		},
	)

	TranscodeScaled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gifbot_transcode_scaled_total",
			Help: "Total number of clips scaled down to the maximum width",
		},
	)
)

// Scratch storage metrics
var (
	WorkspacesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gifbot_workspaces_active",
			Help: "Number of request workspaces currently allocated",
		},
	)

	WorkspaceReleaseErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gifbot_workspace_release_errors_total",
			Help: "Total number of failed removals while releasing workspaces",
		},
	)

	ScratchBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gifbot_scratch_bytes",
			Help: "Total size of the scratch directory in bytes",
		},
	)

	ScratchEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gifbot_scratch_entries",
			Help: "Number of workspace directories under the scratch directory",
		},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gifbot_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the Go memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gifbot_memory_paused",
			Help: "1 while new conversions are held back by memory pressure",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gifbot_memory_gc_pauses_total",
			Help: "Total number of times memory pressure paused admission",
		},
	)
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gifbot_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gifbot_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Filesystem retry metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gifbot_filesystem_retry_attempts_total",
			Help: "Total number of filesystem retry attempts",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gifbot_filesystem_retry_success_total",
			Help: "Total number of filesystem operations that succeeded after retrying",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gifbot_filesystem_retry_failures_total",
			Help: "Total number of filesystem operations that failed after all retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gifbot_filesystem_stale_errors_total",
			Help: "Total number of NFS stale file handle errors",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gifbot_filesystem_retry_duration_seconds",
			Help:    "Duration of filesystem operations including retries",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"operation", "volume"},
	)
)
