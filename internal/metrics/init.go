package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, outcome := range Outcomes {
		for _, kind := range ErrorKinds {
			RequestsTotal.WithLabelValues(outcome, kind)
		}
	}

	for _, stage := range Stages {
		StageDuration.WithLabelValues(stage)
	}

	for _, method := range DeliveryMethods {
		for _, result := range DeliveryResults {
			DeliveryAttempts.WithLabelValues(method, result)
		}
	}

	for _, profile := range EncodeProfiles {
		TranscodeFallbacks.WithLabelValues(profile)
	}

	for _, op := range []string{"stat", "open", "read"} {
		FilesystemRetryAttempts.WithLabelValues(op, "scratch")
		FilesystemRetrySuccess.WithLabelValues(op, "scratch")
		FilesystemRetryFailures.WithLabelValues(op, "scratch")
		FilesystemStaleErrors.WithLabelValues(op, "scratch")
		FilesystemRetryDuration.WithLabelValues(op, "scratch")
	}
}
