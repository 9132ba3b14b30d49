package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the subtitle service
type Metrics struct {
	// Capture metrics
	FramesCaptured prometheus.Counter
	FramesDropped  prometheus.Counter
	FrameQueueSize prometheus.Gauge
	CurrentVolume  prometheus.Gauge

	// Segmentation metrics
	UtterancesEmitted  *prometheus.CounterVec
	UtteranceDuration  prometheus.Histogram
	UtteranceSizeBytes prometheus.Histogram

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionNoSpeech  prometheus.Counter
	TranscriptionDuration  prometheus.Histogram

	// Translation metrics
	TranslationTasks     prometheus.Counter
	TranslationSuccesses prometheus.Counter
	TranslationFailures  *prometheus.CounterVec
	TranslationDropped   prometheus.Counter
	TranslationDuration  prometheus.Histogram
	TranslationQueueSize prometheus.Gauge

	// Subtitle state metrics
	StaleDiscards prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Capture metrics
		FramesCaptured: promauto.NewCounter(prometheus.CounterOpts{
			Name: "subtitle_frames_captured_total",
			Help: "Total number of audio frames captured",
		}),
		FramesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "subtitle_frames_dropped_total",
			Help: "Total number of audio frames dropped at the capture queue",
		}),
		FrameQueueSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "subtitle_frame_queue_size",
			Help: "Current number of frames in the capture queue",
		}),
		CurrentVolume: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "subtitle_current_volume",
			Help: "Mean absolute amplitude of the latest audio frame",
		}),

		// Segmentation metrics
		UtterancesEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "subtitle_utterances_emitted_total",
			Help: "Total number of utterances emitted by closure reason",
		}, []string{"reason"}),
		UtteranceDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "subtitle_utterance_duration_seconds",
			Help:    "Duration of emitted utterances",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 6), // 0.5s to 16s
		}),
		UtteranceSizeBytes: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "subtitle_utterance_size_bytes",
			Help:    "Size of emitted utterances in bytes",
			Buckets: prometheus.ExponentialBuckets(16384, 2, 6), // 16KB to ~512KB
		}),

		// Transcription metrics
		TranscriptionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "subtitle_transcription_requests_total",
			Help: "Total number of transcription requests sent",
		}),
		TranscriptionSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "subtitle_transcription_successes_total",
			Help: "Total number of successful transcription requests",
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "subtitle_transcription_failures_total",
			Help: "Total number of failed transcription requests",
		}),
		TranscriptionNoSpeech: promauto.NewCounter(prometheus.CounterOpts{
			Name: "subtitle_transcription_no_speech_total",
			Help: "Total number of utterances the recognizer found no speech in",
		}),
		TranscriptionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "subtitle_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),

		// Translation metrics
		TranslationTasks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "subtitle_translation_tasks_total",
			Help: "Total number of translation tasks submitted",
		}),
		TranslationSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "subtitle_translation_successes_total",
			Help: "Total number of successful translations",
		}),
		TranslationFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "subtitle_translation_failures_total",
			Help: "Total number of failed translations by failure kind",
		}, []string{"kind"}),
		TranslationDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "subtitle_translation_dropped_total",
			Help: "Total number of translation tasks dropped at the queue",
		}),
		TranslationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "subtitle_translation_duration_seconds",
			Help:    "Duration of translation requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		TranslationQueueSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "subtitle_translation_queue_size",
			Help: "Current number of tasks in the translation queue",
		}),

		// Subtitle state metrics
		StaleDiscards: promauto.NewCounter(prometheus.CounterOpts{
			Name: "subtitle_stale_discards_total",
			Help: "Total number of translation results discarded as stale",
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "subtitle_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "subtitle_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "subtitle_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordFrameCaptured increments the frames captured counter
func (m *Metrics) RecordFrameCaptured() {
	m.FramesCaptured.Inc()
}

// RecordFrameDropped increments the frames dropped counter
func (m *Metrics) RecordFrameDropped() {
	m.FramesDropped.Inc()
}

// SetFrameQueueSize sets the current capture queue size
func (m *Metrics) SetFrameQueueSize(size int) {
	m.FrameQueueSize.Set(float64(size))
}

// SetCurrentVolume sets the latest volume reading
func (m *Metrics) SetCurrentVolume(volume int) {
	m.CurrentVolume.Set(float64(volume))
}

// RecordUtterance records an emitted utterance
func (m *Metrics) RecordUtterance(reason string, durationSeconds float64, sizeBytes int) {
	m.UtterancesEmitted.WithLabelValues(reason).Inc()
	m.UtteranceDuration.Observe(durationSeconds)
	m.UtteranceSizeBytes.Observe(float64(sizeBytes))
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

// RecordTranscriptionNoSpeech increments the no-speech counter
func (m *Metrics) RecordTranscriptionNoSpeech() {
	m.TranscriptionNoSpeech.Inc()
}

// RecordTranslationTask increments the translation tasks counter
func (m *Metrics) RecordTranslationTask() {
	m.TranslationTasks.Inc()
}

// RecordTranslationSuccess records a successful translation
func (m *Metrics) RecordTranslationSuccess(durationSeconds float64) {
	m.TranslationSuccesses.Inc()
	m.TranslationDuration.Observe(durationSeconds)
}

// RecordTranslationFailure records a failed translation by kind
func (m *Metrics) RecordTranslationFailure(kind string, durationSeconds float64) {
	m.TranslationFailures.WithLabelValues(kind).Inc()
	m.TranslationDuration.Observe(durationSeconds)
}

// RecordTranslationDropped increments the dropped tasks counter
func (m *Metrics) RecordTranslationDropped() {
	m.TranslationDropped.Inc()
}

// SetTranslationQueueSize sets the current translation queue size
func (m *Metrics) SetTranslationQueueSize(size int) {
	m.TranslationQueueSize.Set(float64(size))
}

// RecordStaleDiscard increments the stale discards counter
func (m *Metrics) RecordStaleDiscard() {
	m.StaleDiscards.Inc()
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
