// Package metrics exposes recorder activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vadrec"

// Metrics contains all Prometheus metrics for the recorder. A nil *Metrics
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Capture and classification
	FramesCaptured prometheus.Counter
	SpeechFrames   prometheus.Counter
	QueueDepth     *prometheus.GaugeVec
	DeviceErrors   prometheus.Counter
	SessionActive  prometheus.Gauge

	// Utterances
	UtterancesClosed  *prometheus.CounterVec
	UtteranceDuration prometheus.Histogram

	// Export
	Exports        *prometheus.CounterVec
	ExportFailures *prometheus.CounterVec
	ExportDuration prometheus.Histogram
	ExportSize     prometheus.Histogram
	Archives       *prometheus.CounterVec

	// Transcription
	Transcriptions        *prometheus.CounterVec
	TranscriptionDuration prometheus.Histogram

	// HTTP
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates all metrics on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry creates all metrics on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,

		FramesCaptured: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_captured_total",
			Help:      "Total number of audio frames received from the capture device",
		}),
		SpeechFrames: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speech_frames_total",
			Help:      "Total number of frames classified as speech",
		}),
		QueueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Current number of items waiting in a pipeline queue",
		}, []string{"queue"}),
		DeviceErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_errors_total",
			Help:      "Total number of capture device failures",
		}),
		SessionActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_active",
			Help:      "1 while a recording session is running",
		}),

		UtterancesClosed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_closed_total",
			Help:      "Total number of utterances closed, by close reason",
		}, []string{"reason"}),
		UtteranceDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "utterance_duration_seconds",
			Help:      "Duration of closed utterances",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),

		Exports: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Total number of utterance exports, by result",
		}, []string{"result"}),
		ExportFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_failures_total",
			Help:      "Total number of failed exports, by pipeline stage",
		}, []string{"stage"}),
		ExportDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_duration_seconds",
			Help:      "Time from export start to delivery or failure",
			Buckets:   prometheus.DefBuckets,
		}),
		ExportSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_size_bytes",
			Help:      "Size of encoded utterance files",
			Buckets:   prometheus.ExponentialBuckets(4096, 2, 10),
		}),
		Archives: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archives_total",
			Help:      "Total number of archive uploads, by result",
		}, []string{"result"}),

		Transcriptions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcriptions_total",
			Help:      "Total number of transcription requests, by result",
		}, []string{"result"}),
		TranscriptionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcription_duration_seconds",
			Help:      "Duration of transcription requests",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of API requests",
		}, []string{"method", "endpoint", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of API requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// Registry returns the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// RecordFrame counts a classified frame.
func (m *Metrics) RecordFrame(speech bool) {
	if m == nil {
		return
	}
	m.FramesCaptured.Inc()
	if speech {
		m.SpeechFrames.Inc()
	}
}

// SetQueueDepth sets the depth gauge of the named queue.
func (m *Metrics) SetQueueDepth(queue string, depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(queue).Set(float64(depth))
}

// SetSessionActive flips the session gauge.
func (m *Metrics) SetSessionActive(active bool) {
	if m == nil {
		return
	}
	if active {
		m.SessionActive.Set(1)
	} else {
		m.SessionActive.Set(0)
	}
}

// RecordDeviceError counts a device failure.
func (m *Metrics) RecordDeviceError() {
	if m == nil {
		return
	}
	m.DeviceErrors.Inc()
}

// RecordUtterance records a closed utterance.
func (m *Metrics) RecordUtterance(reason string, d time.Duration) {
	if m == nil {
		return
	}
	m.UtterancesClosed.WithLabelValues(reason).Inc()
	m.UtteranceDuration.Observe(d.Seconds())
}

// RecordExportSuccess records a delivered utterance.
func (m *Metrics) RecordExportSuccess(elapsed time.Duration, size int64) {
	if m == nil {
		return
	}
	m.Exports.WithLabelValues(result(true)).Inc()
	m.ExportDuration.Observe(elapsed.Seconds())
	m.ExportSize.Observe(float64(size))
}

// RecordExportFailure records a failed export at stage.
func (m *Metrics) RecordExportFailure(stage string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Exports.WithLabelValues(result(false)).Inc()
	m.ExportFailures.WithLabelValues(stage).Inc()
	m.ExportDuration.Observe(elapsed.Seconds())
}

// RecordArchive records an archive upload attempt.
func (m *Metrics) RecordArchive(ok bool) {
	if m == nil {
		return
	}
	m.Archives.WithLabelValues(result(ok)).Inc()
}

// RecordTranscription records a transcription request.
func (m *Metrics) RecordTranscription(ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Transcriptions.WithLabelValues(result(ok)).Inc()
	m.TranscriptionDuration.Observe(elapsed.Seconds())
}

// RecordHTTPRequest records an API request.
func (m *Metrics) RecordHTTPRequest(method, endpoint string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(elapsed.Seconds())
}
