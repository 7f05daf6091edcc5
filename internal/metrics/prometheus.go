// Package metrics holds the Prometheus collectors for voiceplanner.
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

// Metrics contains all Prometheus metrics for voiceplanner.
// Each instance owns its registry so several can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	// Recording metrics
	RecordingsStarted  prometheus.Counter
	RecordingsFinished *prometheus.CounterVec
	RecordingDuration  prometheus.Histogram
	TranscriptUpdates  *prometheus.CounterVec

	// Store metrics
	NotesSaved   prometheus.Counter
	TasksCreated prometheus.Counter

	// Remote sync metrics
	RemoteRequests        *prometheus.CounterVec
	RemoteRequestDuration *prometheus.HistogramVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates and registers all metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RecordingsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "voiceplanner_recordings_started_total",
			Help: "Total number of recording sessions started",
		}),
		RecordingsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceplanner_recordings_finished_total",
			Help: "Total number of recording sessions finished, by outcome",
		}, []string{"outcome"}),
		RecordingDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voiceplanner_recording_duration_seconds",
			Help:    "Duration of recording sessions",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17 minutes
		}),
		TranscriptUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceplanner_transcript_updates_total",
			Help: "Total number of recognition updates received, by kind",
		}, []string{"kind"}),

		NotesSaved: f.NewCounter(prometheus.CounterOpts{
			Name: "voiceplanner_notes_saved_total",
			Help: "Total number of notes persisted",
		}),
		TasksCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "voiceplanner_tasks_created_total",
			Help: "Total number of tasks persisted",
		}),

		RemoteRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceplanner_remote_requests_total",
			Help: "Total number of requests to remote services",
		}, []string{"service", "op", "status_code"}),
		RemoteRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voiceplanner_remote_request_duration_seconds",
			Help:    "Duration of requests to remote services",
			Buckets: prometheus.DefBuckets,
		}, []string{"service", "op"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceplanner_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voiceplanner_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordRecordingStarted increments the started counter.
func (m *Metrics) RecordRecordingStarted() {
	if m == nil {
		return
	}
	m.RecordingsStarted.Inc()
}

// RecordRecordingFinished counts a finished session and its length.
func (m *Metrics) RecordRecordingFinished(ok bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.RecordingsFinished.WithLabelValues(outcome).Inc()
	m.RecordingDuration.Observe(d.Seconds())
}

// RecordTranscriptUpdate counts one recognition update.
func (m *Metrics) RecordTranscriptUpdate(final bool) {
	if m == nil {
		return
	}
	kind := "interim"
	if final {
		kind = "final"
	}
	m.TranscriptUpdates.WithLabelValues(kind).Inc()
}

// RecordNoteSaved increments the notes counter.
func (m *Metrics) RecordNoteSaved() {
	if m == nil {
		return
	}
	m.NotesSaved.Inc()
}

// RecordTaskCreated increments the tasks counter.
func (m *Metrics) RecordTaskCreated() {
	if m == nil {
		return
	}
	m.TasksCreated.Inc()
}

// RecordRemoteRequest records one call to a remote service. A zero status
// means the request never got a response.
func (m *Metrics) RecordRemoteRequest(service, op string, status int, d time.Duration) {
	if m == nil {
		return
	}
	code := "none"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.RemoteRequests.WithLabelValues(service, op, code).Inc()
	m.RemoteRequestDuration.WithLabelValues(service, op).Observe(d.Seconds())
}

// RecordHTTPRequest records one served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, endpoint string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(d.Seconds())
}
