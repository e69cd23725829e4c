package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the voxmail backend
type Metrics struct {
	// Session metrics
	LoginsTotal    prometheus.Counter
	LoginsRejected prometheus.Counter
	ActiveSessions prometheus.Gauge

	// Upload metrics
	UploadsTotal    prometheus.Counter
	UploadsRejected *prometheus.CounterVec
	UploadSize      prometheus.Histogram

	// Job metrics
	JobsStarted   *prometheus.CounterVec
	JobsCompleted *prometheus.CounterVec
	JobsFailed    *prometheus.CounterVec
	JobDuration   *prometheus.HistogramVec
	PendingJobs   prometheus.Gauge

	// Transcription client metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionDuration  prometheus.Histogram
	TranscriptionRetries   prometheus.Counter

	// Summary metrics
	SummaryRequests  prometheus.Counter
	SummaryFailures  prometheus.Counter
	SummaryDuration  prometheus.Histogram
	SummaryTokens    prometheus.Histogram

	// Email metrics
	EmailsSent   prometheus.Counter
	EmailsFailed prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Session metrics
		LoginsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voxmail_logins_total",
			Help: "Total number of successful logins",
		}),
		LoginsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voxmail_logins_rejected_total",
			Help: "Total number of rejected login attempts",
		}),
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "voxmail_active_sessions",
			Help: "Current number of active sessions",
		}),

		// Upload metrics
		UploadsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voxmail_uploads_total",
			Help: "Total number of audio uploads accepted",
		}),
		UploadsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voxmail_uploads_rejected_total",
			Help: "Total number of audio uploads rejected",
		}, []string{"reason"}),
		UploadSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voxmail_upload_size_bytes",
			Help:    "Size of uploaded audio payloads in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 14), // 1KB to ~16MB
		}),

		// Job metrics
		JobsStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voxmail_jobs_started_total",
			Help: "Total number of background jobs started",
		}, []string{"kind"}),
		JobsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voxmail_jobs_completed_total",
			Help: "Total number of background jobs completed",
		}, []string{"kind"}),
		JobsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voxmail_jobs_failed_total",
			Help: "Total number of background jobs failed",
		}, []string{"kind"}),
		JobDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voxmail_job_duration_seconds",
			Help:    "Duration of background jobs",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4 minutes
		}, []string{"kind"}),
		PendingJobs: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "voxmail_pending_jobs",
			Help: "Current number of pending background jobs",
		}),

		// Transcription client metrics
		TranscriptionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voxmail_transcription_requests_total",
			Help: "Total number of transcription requests sent",
		}),
		TranscriptionSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voxmail_transcription_successes_total",
			Help: "Total number of successful transcription requests",
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voxmail_transcription_failures_total",
			Help: "Total number of failed transcription requests",
		}),
		TranscriptionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voxmail_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		TranscriptionRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voxmail_transcription_retries_total",
			Help: "Total number of transcription request retries",
		}),

		// Summary metrics
		SummaryRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voxmail_summary_requests_total",
			Help: "Total number of summary requests sent",
		}),
		SummaryFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voxmail_summary_failures_total",
			Help: "Total number of failed summary requests",
		}),
		SummaryDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voxmail_summary_duration_seconds",
			Help:    "Duration of summary requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		SummaryTokens: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voxmail_summary_tokens",
			Help:    "Completion tokens consumed per summary",
			Buckets: prometheus.ExponentialBuckets(16, 2, 8), // 16 to ~2048
		}),

		// Email metrics
		EmailsSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voxmail_emails_sent_total",
			Help: "Total number of emails dispatched",
		}),
		EmailsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voxmail_emails_failed_total",
			Help: "Total number of email dispatch failures",
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voxmail_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voxmail_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// RecordLogin increments the login counter
func (m *Metrics) RecordLogin() {
	m.LoginsTotal.Inc()
}

// RecordLoginRejected increments the rejected login counter
func (m *Metrics) RecordLoginRejected() {
	m.LoginsRejected.Inc()
}

// SetActiveSessions sets the current number of sessions
func (m *Metrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

// RecordUpload records an accepted audio upload
func (m *Metrics) RecordUpload(sizeBytes int) {
	m.UploadsTotal.Inc()
	m.UploadSize.Observe(float64(sizeBytes))
}

// RecordUploadRejected records a rejected upload by reason
func (m *Metrics) RecordUploadRejected(reason string) {
	m.UploadsRejected.WithLabelValues(reason).Inc()
}

// RecordJobStarted records a background job start
func (m *Metrics) RecordJobStarted(kind string) {
	m.JobsStarted.WithLabelValues(kind).Inc()
	m.PendingJobs.Inc()
}

// RecordJobCompleted records a background job completion
func (m *Metrics) RecordJobCompleted(kind string, durationSeconds float64) {
	m.JobsCompleted.WithLabelValues(kind).Inc()
	m.JobDuration.WithLabelValues(kind).Observe(durationSeconds)
	m.PendingJobs.Dec()
}

// RecordJobFailed records a background job failure
func (m *Metrics) RecordJobFailed(kind string, durationSeconds float64) {
	m.JobsFailed.WithLabelValues(kind).Inc()
	m.JobDuration.WithLabelValues(kind).Observe(durationSeconds)
	m.PendingJobs.Dec()
}

// RecordTranscriptionRequest increments transcription requests counter
func (m *Metrics) RecordTranscriptionRequest() {
	m.TranscriptionRequests.Inc()
}

// RecordTranscriptionSuccess records a successful transcription
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64) {
	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed transcription
func (m *Metrics) RecordTranscriptionFailure(durationSeconds float64) {
	m.TranscriptionFailures.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionRetry increments the retry counter
func (m *Metrics) RecordTranscriptionRetry() {
	m.TranscriptionRetries.Inc()
}

// RecordSummaryRequest increments the summary request counter
func (m *Metrics) RecordSummaryRequest() {
	m.SummaryRequests.Inc()
}

// RecordSummarySuccess records a completed summary
func (m *Metrics) RecordSummarySuccess(durationSeconds float64, completionTokens int) {
	m.SummaryDuration.Observe(durationSeconds)
	m.SummaryTokens.Observe(float64(completionTokens))
}

// RecordSummaryFailure increments the summary failure counter
func (m *Metrics) RecordSummaryFailure() {
	m.SummaryFailures.Inc()
}

// RecordEmailSent increments the emails sent counter
func (m *Metrics) RecordEmailSent() {
	m.EmailsSent.Inc()
}

// RecordEmailFailed increments the email failure counter
func (m *Metrics) RecordEmailFailed() {
	m.EmailsFailed.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
