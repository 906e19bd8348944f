package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the transcription service
type Metrics struct {
	// Transcription request metrics
	Requests  prometheus.Counter
	Successes prometheus.Counter
	Failures  prometheus.Counter
	Cancelled prometheus.Counter
	Rejected  prometheus.Counter
	Duration  prometheus.Histogram
	QueueSize prometheus.Gauge

	// Pipeline metrics
	AudioDuration prometheus.Histogram
	MelFrames     prometheus.Histogram
	DecodedTokens prometheus.Histogram
	Confidence    prometheus.Histogram

	// Model download metrics
	ModelDownloads      prometheus.Counter
	ModelDownloadErrors prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		Requests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "whisper_transcription_requests_total",
			Help: "Total number of transcription requests accepted",
		}),
		Successes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "whisper_transcription_successes_total",
			Help: "Total number of successful transcriptions",
		}),
		Failures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "whisper_transcription_failures_total",
			Help: "Total number of failed transcriptions",
		}),
		Cancelled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "whisper_transcription_cancelled_total",
			Help: "Total number of cancelled transcription requests",
		}),
		Rejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "whisper_transcription_rejected_total",
			Help: "Total number of requests rejected because the queue was full",
		}),
		Duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "whisper_transcription_duration_seconds",
			Help:    "End-to-end duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		QueueSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "whisper_request_queue_size",
			Help: "Current number of pending transcription requests",
		}),

		AudioDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "whisper_audio_duration_seconds",
			Help:    "Duration of submitted audio after normalization",
			Buckets: prometheus.LinearBuckets(1, 3, 11), // 1s to 31s
		}),
		MelFrames: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "whisper_mel_frames",
			Help:    "Number of spectrogram frames per request",
			Buckets: prometheus.ExponentialBuckets(100, 2, 6), // 100 to 3200
		}),
		DecodedTokens: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "whisper_decoded_tokens",
			Help:    "Number of tokens emitted per decode",
			Buckets: prometheus.ExponentialBuckets(4, 2, 8), // 4 to 512
		}),
		Confidence: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "whisper_transcription_confidence",
			Help:    "Mean token confidence of completed transcriptions",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11), // 0.0 to 1.0
		}),

		ModelDownloads: promauto.NewCounter(prometheus.CounterOpts{
			Name: "whisper_model_downloads_total",
			Help: "Total number of completed model downloads",
		}),
		ModelDownloadErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "whisper_model_download_errors_total",
			Help: "Total number of failed model downloads",
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "whisper_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "whisper_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "whisper_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordRequest increments the accepted requests counter
func (m *Metrics) RecordRequest() {
	if m == nil {
		return
	}
	m.Requests.Inc()
}

// RecordRejected increments the queue-full rejections counter
func (m *Metrics) RecordRejected() {
	if m == nil {
		return
	}
	m.Rejected.Inc()
}

// RecordSuccess records a completed transcription
func (m *Metrics) RecordSuccess(durationSeconds, confidence float64, tokens int) {
	if m == nil {
		return
	}
	m.Successes.Inc()
	m.Duration.Observe(durationSeconds)
	m.Confidence.Observe(confidence)
	m.DecodedTokens.Observe(float64(tokens))
}

// RecordFailure records a failed transcription
func (m *Metrics) RecordFailure(durationSeconds float64) {
	if m == nil {
		return
	}
	m.Failures.Inc()
	m.Duration.Observe(durationSeconds)
}

// RecordCancelled increments the cancelled requests counter
func (m *Metrics) RecordCancelled() {
	if m == nil {
		return
	}
	m.Cancelled.Inc()
}

// SetQueueSize sets the current pending-request gauge
func (m *Metrics) SetQueueSize(size int) {
	if m == nil {
		return
	}
	m.QueueSize.Set(float64(size))
}

// RecordPipeline records per-request pipeline shape observations
func (m *Metrics) RecordPipeline(audioSeconds float64, melFrames int) {
	if m == nil {
		return
	}
	m.AudioDuration.Observe(audioSeconds)
	m.MelFrames.Observe(float64(melFrames))
}

// RecordModelDownload records a completed or failed model download
func (m *Metrics) RecordModelDownload(success bool) {
	if m == nil {
		return
	}
	if success {
		m.ModelDownloads.Inc()
	} else {
		m.ModelDownloadErrors.Inc()
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
