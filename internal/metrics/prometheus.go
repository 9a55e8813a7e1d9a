package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"go-video-recorder/internal/core/domain"
)

// Metrics contains all Prometheus metrics for the recorder service
type Metrics struct {
	// Job queue metrics
	JobsEnqueued *prometheus.CounterVec
	JobsFinished *prometheus.CounterVec
	JobRetries   *prometheus.CounterVec
	JobDuration  *prometheus.HistogramVec

	// Chunk metrics
	ChunksAppended prometheus.Counter
	ChunkSize      prometheus.Histogram

	// Session metrics
	SessionTransitions *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		JobsEnqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recorder_jobs_enqueued_total",
			Help: "Total number of background jobs enqueued",
		}, []string{"kind"}),
		JobsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recorder_jobs_finished_total",
			Help: "Total number of background jobs finished, by outcome",
		}, []string{"kind", "outcome"}),
		JobRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recorder_job_retries_total",
			Help: "Total number of background job retries",
		}, []string{"kind"}),
		JobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recorder_job_duration_seconds",
			Help:    "Duration of background job executions",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4 minutes
		}, []string{"kind"}),

		ChunksAppended: factory.NewCounter(prometheus.CounterOpts{
			Name: "recorder_chunks_appended_total",
			Help: "Total number of video chunks persisted",
		}),
		ChunkSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "recorder_chunk_size_bytes",
			Help:    "Size of persisted video chunks in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KB to ~256MB
		}),

		SessionTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recorder_session_transitions_total",
			Help: "Total number of session state transitions, by target state",
		}, []string{"state"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recorder_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recorder_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recorder_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// JobEnqueued increments the enqueued counter for kind
func (m *Metrics) JobEnqueued(kind domain.JobKind) {
	m.JobsEnqueued.WithLabelValues(string(kind)).Inc()
}

// JobFinished records the outcome and duration of one job execution
func (m *Metrics) JobFinished(kind domain.JobKind, seconds float64, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.JobsFinished.WithLabelValues(string(kind), outcome).Inc()
	m.JobDuration.WithLabelValues(string(kind)).Observe(seconds)
}

// JobRetried increments the retry counter for kind
func (m *Metrics) JobRetried(kind domain.JobKind) {
	m.JobRetries.WithLabelValues(string(kind)).Inc()
}

// ChunkAppended records one persisted chunk
func (m *Metrics) ChunkAppended(size int) {
	m.ChunksAppended.Inc()
	m.ChunkSize.Observe(float64(size))
}

// SessionStateChanged counts a transition into state
func (m *Metrics) SessionStateChanged(state domain.SessionState) {
	m.SessionTransitions.WithLabelValues(string(state)).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
