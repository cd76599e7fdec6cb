package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ClientMetrics contains Prometheus metrics for API traffic and the dashboard coordinators.
type ClientMetrics struct {
	registry *prometheus.Registry

	apiRequestsTotal         *prometheus.CounterVec
	apiRequestDuration       *prometheus.HistogramVec
	coordinatorRequestsTotal *prometheus.CounterVec
	debounceResetsTotal      prometheus.Counter
	observationsTotal        *prometheus.CounterVec
}

// NewClientMetrics creates and registers client metrics
func NewClientMetrics(registry *prometheus.Registry) (*ClientMetrics, error) {
	m := &ClientMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *ClientMetrics) initMetrics() {
	m.apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "climagrid_api_requests_total",
			Help: "Total number of requests sent to the ClimaGrid API",
		},
		[]string{"endpoint", "status"}, // status: HTTP status code or network_error
	)

	m.apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "climagrid_api_request_duration_seconds",
			Help: "Time taken by ClimaGrid API requests",
			// 10ms to ~40s
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12),
		},
		[]string{"endpoint"},
	)

	m.coordinatorRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "climagrid_coordinator_requests_total",
			Help: "Coordinator requests by outcome",
		},
		[]string{"coordinator", "outcome"}, // outcome: committed, superseded, failed, aborted
	)

	m.debounceResetsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "climagrid_search_debounce_resets_total",
		Help: "Number of times a pending search debounce timer was reset by new input",
	})

	m.observationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "climagrid_observations_submitted_total",
			Help: "Observation submissions by result",
		},
		[]string{"result"}, // result: success, rejected, failed, validation
	)
}

// Describe implements the Collector interface
func (m *ClientMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.apiRequestsTotal.Describe(ch)
	m.apiRequestDuration.Describe(ch)
	m.coordinatorRequestsTotal.Describe(ch)
	m.debounceResetsTotal.Describe(ch)
	m.observationsTotal.Describe(ch)
}

// Collect implements the Collector interface
func (m *ClientMetrics) Collect(ch chan<- prometheus.Metric) {
	m.apiRequestsTotal.Collect(ch)
	m.apiRequestDuration.Collect(ch)
	m.coordinatorRequestsTotal.Collect(ch)
	m.debounceResetsTotal.Collect(ch)
	m.observationsTotal.Collect(ch)
}

// Registry returns the registry the metrics are registered with.
func (m *ClientMetrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordAPIRequest records one API request. A status of 0 means no response was received.
// All Record methods are no-ops on a nil receiver.
func (m *ClientMetrics) RecordAPIRequest(endpoint string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	statusLabel := StatusNetworkError
	if status > 0 {
		statusLabel = strconv.Itoa(status)
	}
	m.apiRequestsTotal.WithLabelValues(endpoint, statusLabel).Inc()
	m.apiRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordCoordinatorOutcome records how a coordinator request ended.
func (m *ClientMetrics) RecordCoordinatorOutcome(coordinator, outcome string) {
	if m == nil {
		return
	}
	m.coordinatorRequestsTotal.WithLabelValues(coordinator, outcome).Inc()
}

// RecordDebounceReset records a debounce timer reset.
func (m *ClientMetrics) RecordDebounceReset() {
	if m == nil {
		return
	}
	m.debounceResetsTotal.Inc()
}

// RecordObservationSubmission records the result of an observation submission.
func (m *ClientMetrics) RecordObservationSubmission(result string) {
	if m == nil {
		return
	}
	m.observationsTotal.WithLabelValues(result).Inc()
}
