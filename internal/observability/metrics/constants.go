// Package metrics provides Prometheus collectors for the ClimaGrid client.
package metrics

import "time"

// Coordinator names used as label values.
const (
	CoordinatorSearch      = "search"
	CoordinatorTimeseries  = "timeseries"
	CoordinatorObservation = "observation"
	CoordinatorCatalog     = "catalog"
)

// Outcome label values for coordinator requests.
const (
	// OutcomeCommitted means the response was applied to the view state.
	OutcomeCommitted = "committed"
	// OutcomeSuperseded means a newer request made the response stale.
	OutcomeSuperseded = "superseded"
	// OutcomeFailed means the request failed and the failure was surfaced or logged.
	OutcomeFailed = "failed"
	// OutcomeAborted means the request was cancelled before completing.
	OutcomeAborted = "aborted"
)

// Result label values for observation submissions.
const (
	ResultSuccess    = "success"
	ResultRejected   = "rejected"
	ResultFailed     = "failed"
	ResultValidation = "validation"
)

// Status label used when a request produced no HTTP response.
const StatusNetworkError = "network_error"

// Histogram bucket parameters.
const (
	// BucketStart10ms is the starting bucket for 10ms histograms (10ms to ~40s range).
	BucketStart10ms = 0.01
	// BucketFactor2 is the common exponential growth factor of 2 for histogram buckets.
	BucketFactor2 = 2
	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12
)

// ShutdownTimeout bounds the graceful shutdown of the metrics HTTP server.
const ShutdownTimeout = 5 * time.Second
