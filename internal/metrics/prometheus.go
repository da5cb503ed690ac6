package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the voice command relay
type Metrics struct {
	// Audio capture metrics
	ChunksCaptured  prometheus.Counter
	ChunksDropped   prometheus.Counter
	ChunksForwarded prometheus.Counter
	QueueSize       prometheus.Gauge

	// Session metrics
	SessionsStarted prometheus.Counter
	SessionRestarts prometheus.Counter
	SessionErrors   prometheus.Counter
	SessionActive   prometheus.Gauge
	SessionDuration prometheus.Histogram

	// Transcript metrics
	TranscriptEvents *prometheus.CounterVec
	EventsRejected   prometheus.Counter

	// Command metrics
	CommandsMatched    prometheus.Counter
	CommandsSuppressed prometheus.Counter
	CommandsPublished  prometheus.Counter

	// Publish hub metrics
	Subscribers     prometheus.Gauge
	MessagesDropped prometheus.Counter
	PublishedBytes  prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Audio capture metrics
		ChunksCaptured: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_audio_chunks_captured_total",
			Help: "Total number of audio chunks captured from the microphone",
		}),
		ChunksDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_audio_chunks_dropped_total",
			Help: "Total number of audio chunks evicted from the capture queue",
		}),
		ChunksForwarded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_audio_chunks_forwarded_total",
			Help: "Total number of audio chunks forwarded to the recognizer",
		}),
		QueueSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "voice_audio_queue_size",
			Help: "Current number of chunks in the capture queue",
		}),

		// Session metrics
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_sessions_started_total",
			Help: "Total number of recognition sessions started",
		}),
		SessionRestarts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_session_restarts_total",
			Help: "Total number of sessions restarted after the streaming budget expired",
		}),
		SessionErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_session_errors_total",
			Help: "Total number of sessions ended by a recoverable error",
		}),
		SessionActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "voice_session_active",
			Help: "Whether a recognition session is currently active (0 or 1)",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_session_duration_seconds",
			Help:    "Duration of recognition sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8), // 1s to ~2 minutes
		}),

		// Transcript metrics
		TranscriptEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_transcript_events_total",
			Help: "Total number of transcript events received from the recognizer",
		}, []string{"kind"}),
		EventsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_transcript_events_rejected_total",
			Help: "Total number of low-stability interim events rejected by the acceptance filter",
		}),

		// Command metrics
		CommandsMatched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_commands_matched_total",
			Help: "Total number of transcripts that matched a vocabulary phrase",
		}),
		CommandsSuppressed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_commands_suppressed_total",
			Help: "Total number of command emissions suppressed as too-soon repeats",
		}),
		CommandsPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_commands_published_total",
			Help: "Total number of command messages handed to the publisher",
		}),

		// Publish hub metrics
		Subscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "voice_publish_subscribers",
			Help: "Current number of connected command subscribers",
		}),
		MessagesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_publish_messages_dropped_total",
			Help: "Total number of messages dropped for slow subscribers",
		}),
		PublishedBytes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_publish_bytes_total",
			Help: "Total number of payload bytes broadcast to subscribers",
		}),
	}
}

// RecordChunkCaptured increments the captured chunks counter
func (m *Metrics) RecordChunkCaptured() {
	m.ChunksCaptured.Inc()
}

// RecordChunkDropped increments the dropped chunks counter
func (m *Metrics) RecordChunkDropped() {
	m.ChunksDropped.Inc()
}

// RecordChunkForwarded increments the forwarded chunks counter
func (m *Metrics) RecordChunkForwarded() {
	m.ChunksForwarded.Inc()
}

// SetQueueSize sets the current capture queue size
func (m *Metrics) SetQueueSize(size int) {
	m.QueueSize.Set(float64(size))
}

// RecordSessionStarted marks a new session as active
func (m *Metrics) RecordSessionStarted() {
	m.SessionsStarted.Inc()
	m.SessionActive.Set(1)
}

// RecordSessionEnded records the end of a session and its duration
func (m *Metrics) RecordSessionEnded(durationSeconds float64) {
	m.SessionActive.Set(0)
	m.SessionDuration.Observe(durationSeconds)
}

// RecordSessionRestart increments the budget-expiry restart counter
func (m *Metrics) RecordSessionRestart() {
	m.SessionRestarts.Inc()
}

// RecordSessionError increments the recoverable session error counter
func (m *Metrics) RecordSessionError() {
	m.SessionErrors.Inc()
}

// RecordTranscriptEvent records a received transcript event by kind
func (m *Metrics) RecordTranscriptEvent(isFinal bool) {
	kind := "interim"
	if isFinal {
		kind = "final"
	}
	m.TranscriptEvents.WithLabelValues(kind).Inc()
}

// RecordEventRejected increments the acceptance filter rejection counter
func (m *Metrics) RecordEventRejected() {
	m.EventsRejected.Inc()
}

// RecordCommandMatched increments the matched commands counter
func (m *Metrics) RecordCommandMatched() {
	m.CommandsMatched.Inc()
}

// RecordCommandSuppressed increments the suppressed commands counter
func (m *Metrics) RecordCommandSuppressed() {
	m.CommandsSuppressed.Inc()
}

// RecordCommandPublished increments the published commands counter
func (m *Metrics) RecordCommandPublished() {
	m.CommandsPublished.Inc()
}

// SetSubscribers sets the current subscriber count
func (m *Metrics) SetSubscribers(count int) {
	m.Subscribers.Set(float64(count))
}

// RecordMessageDropped increments the dropped messages counter
func (m *Metrics) RecordMessageDropped() {
	m.MessagesDropped.Inc()
}

// RecordPublishedBytes adds to the broadcast payload byte counter
func (m *Metrics) RecordPublishedBytes(n int) {
	m.PublishedBytes.Add(float64(n))
}
