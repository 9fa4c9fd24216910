package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for a voice node.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Capture metrics
	CapturesStarted prometheus.Counter
	CaptureFailures prometheus.Counter
	SlicesEncoded   prometheus.Counter
	SlicesAborted   prometheus.Counter
	FragmentSize    prometheus.Histogram

	// Transport metrics
	FragmentsPublished *prometheus.CounterVec
	StoreWriteDuration *prometheus.HistogramVec
	FinalRecordings    *prometheus.CounterVec
	MessagesPublished  *prometheus.CounterVec

	// Receive metrics
	SessionsDiscovered *prometheus.CounterVec
	FragmentsReceived  prometheus.Counter
	SequencerDrops     *prometheus.CounterVec
	DecodeFailures     prometheus.Counter
	PlaybackLateness   prometheus.Histogram
	FollowedSessions   prometheus.Gauge

	// Transcription metrics
	TranscriptionRequests *prometheus.CounterVec
	TranscriptionDuration prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates the metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CapturesStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "livevoice_captures_started_total",
			Help: "Total number of capture sessions started",
		}),
		CaptureFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "livevoice_capture_failures_total",
			Help: "Total number of capture attempts refused by the microphone",
		}),
		SlicesEncoded: f.NewCounter(prometheus.CounterOpts{
			Name: "livevoice_slices_encoded_total",
			Help: "Total number of completed capture slices",
		}),
		SlicesAborted: f.NewCounter(prometheus.CounterOpts{
			Name: "livevoice_slices_aborted_total",
			Help: "Total number of capture slices discarded on stop or error",
		}),
		FragmentSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "livevoice_fragment_size_bytes",
			Help:    "Size of encoded audio fragments",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 8), // 1KB to 128KB
		}),

		FragmentsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livevoice_fragments_published_total",
			Help: "Fragments handed to the store by result",
		}, []string{"result"}),
		StoreWriteDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "livevoice_store_write_duration_seconds",
			Help:    "Duration of store writes",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}, []string{"op"}),
		FinalRecordings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livevoice_final_recordings_total",
			Help: "Finalized recordings by result",
		}, []string{"result"}),
		MessagesPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livevoice_messages_published_total",
			Help: "Chat messages appended by type",
		}, []string{"type"}),

		SessionsDiscovered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livevoice_sessions_discovered_total",
			Help: "Announced sessions by classification",
		}, []string{"result"}),
		FragmentsReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "livevoice_fragments_received_total",
			Help: "Total number of remote fragments received",
		}),
		SequencerDrops: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livevoice_sequencer_drops_total",
			Help: "Fragments dropped by the reorder buffer",
		}, []string{"reason"}),
		DecodeFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "livevoice_decode_failures_total",
			Help: "Total number of fragments that failed to decode",
		}),
		PlaybackLateness: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "livevoice_playback_lateness_seconds",
			Help:    "How far behind the playback cursor a fragment arrived",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
		}),
		FollowedSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "livevoice_followed_sessions",
			Help: "Current number of remote sessions being played",
		}),

		TranscriptionRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livevoice_transcription_requests_total",
			Help: "Transcription requests by result",
		}, []string{"result"}),
		TranscriptionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "livevoice_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livevoice_http_requests_total",
			Help: "Total number of control API requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "livevoice_http_request_duration_seconds",
			Help:    "Duration of control API requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

func (m *Metrics) RecordCaptureStarted() {
	if m == nil {
		return
	}
	m.CapturesStarted.Inc()
}

func (m *Metrics) RecordCaptureFailure() {
	if m == nil {
		return
	}
	m.CaptureFailures.Inc()
}

// RecordSlice records a completed slice and its encoded size
func (m *Metrics) RecordSlice(sizeBytes int) {
	if m == nil {
		return
	}
	m.SlicesEncoded.Inc()
	m.FragmentSize.Observe(float64(sizeBytes))
}

func (m *Metrics) RecordSliceAborted() {
	if m == nil {
		return
	}
	m.SlicesAborted.Inc()
}

// RecordFragmentPublished records a publish outcome: ok, failed or dropped
func (m *Metrics) RecordFragmentPublished(result string) {
	if m == nil {
		return
	}
	m.FragmentsPublished.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordStoreWrite(op string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.StoreWriteDuration.WithLabelValues(op).Observe(durationSeconds)
}

func (m *Metrics) RecordFinalRecording(result string) {
	if m == nil {
		return
	}
	m.FinalRecordings.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordMessagePublished(msgType string) {
	if m == nil {
		return
	}
	m.MessagesPublished.WithLabelValues(msgType).Inc()
}

// RecordSessionDiscovered records how an announced session was classified: followed, self or stale
func (m *Metrics) RecordSessionDiscovered(result string) {
	if m == nil {
		return
	}
	m.SessionsDiscovered.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordFragmentReceived() {
	if m == nil {
		return
	}
	m.FragmentsReceived.Inc()
}

func (m *Metrics) RecordSequencerDrop(reason string) {
	if m == nil {
		return
	}
	m.SequencerDrops.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordDecodeFailure() {
	if m == nil {
		return
	}
	m.DecodeFailures.Inc()
}

// RecordLateness observes how long a fragment waited past the cursor; zero is on time
func (m *Metrics) RecordLateness(seconds float64) {
	if m == nil {
		return
	}
	m.PlaybackLateness.Observe(seconds)
}

func (m *Metrics) AddFollowedSessions(delta int) {
	if m == nil {
		return
	}
	m.FollowedSessions.Add(float64(delta))
}

func (m *Metrics) RecordTranscription(result string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.TranscriptionRequests.WithLabelValues(result).Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordHTTPRequest records a control API request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
