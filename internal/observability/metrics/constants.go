// Package metrics provides custom Prometheus metrics for the LansoScan services.
package metrics

// Histogram bucket configuration constants.
const (
	// BucketStart1ms is the starting bucket for 1ms histograms (1ms to ~32s range).
	BucketStart1ms = 0.001
	// BucketStart100ms is the starting bucket for 100ms histograms (100ms to ~100s range).
	BucketStart100ms = 0.1
	// BucketStart1KB is the starting bucket for 1KB size histograms.
	BucketStart1KB = 1024.0

	// BucketFactor2 is the common exponential growth factor for histogram buckets.
	BucketFactor2 = 2

	// BucketCount10 defines 10 exponential buckets.
	BucketCount10 = 10
	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12
	// BucketCount15 defines 15 exponential buckets.
	BucketCount15 = 15
)

// Label value constants used for metric labels.
const (
	// StatusSuccess marks a successfully completed operation.
	StatusSuccess = "success"
	// StatusError marks a failed operation.
	StatusError = "error"
	// VerdictDiseased marks a scan where a disease was detected.
	VerdictDiseased = "diseased"
	// VerdictHealthy marks a scan with no disease detected.
	VerdictHealthy = "healthy"
)
