package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus instruments for the widget session
type Metrics struct {
	registry *prometheus.Registry

	// Connection metrics
	ConnectAttempts  prometheus.Counter
	ConnectFailures  *prometheus.CounterVec
	ConnectLatency   prometheus.Histogram
	ConnectionState  prometheus.Gauge
	PermanentFailure prometheus.Counter

	// Wire metrics
	MessagesReceived  *prometheus.CounterVec
	MessagesSent      prometheus.Counter
	SendDropped       prometheus.Counter
	MalformedMessages prometheus.Counter

	// Audio metrics
	FramesSent        prometheus.Counter
	FragmentsEnqueued prometheus.Counter
	FragmentsStale    prometheus.Counter
	DecodeFailures    prometheus.Counter
	PlaybackFailures  prometheus.Counter
	PlaybackFlushed   prometheus.Counter
	Interruptions     prometheus.Counter
}

// New registers every instrument on a fresh registry that also carries the
// Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := NewWith(reg)
	m.registry = reg
	return m
}

func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ConnectAttempts: f.NewCounter(prometheus.CounterOpts{
			Name: "widget_connect_attempts_total",
			Help: "Total number of session connection attempts",
		}),
		ConnectFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "widget_connect_failures_total",
			Help: "Failed connection attempts by cause",
		}, []string{"cause"}),
		ConnectLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "widget_connect_duration_seconds",
			Help:    "Time from attempt start to an open socket",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),
		ConnectionState: f.NewGauge(prometheus.GaugeOpts{
			Name: "widget_connection_state",
			Help: "Current connection state (0 disconnected, 1 connecting, 2 open, 3 closing, 4 failed)",
		}),
		PermanentFailure: f.NewCounter(prometheus.CounterOpts{
			Name: "widget_connection_failed_permanently_total",
			Help: "Times the retry ceiling was exceeded",
		}),

		MessagesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "widget_messages_received_total",
			Help: "Inbound messages by event type",
		}, []string{"type"}),
		MessagesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "widget_messages_sent_total",
			Help: "Outbound messages written to the socket",
		}),
		SendDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "widget_messages_dropped_total",
			Help: "Outbound messages dropped because the session was not open",
		}),
		MalformedMessages: f.NewCounter(prometheus.CounterOpts{
			Name: "widget_malformed_messages_total",
			Help: "Inbound frames that could not be decoded",
		}),

		FramesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "widget_audio_frames_sent_total",
			Help: "Captured frames forwarded to the session",
		}),
		FragmentsEnqueued: f.NewCounter(prometheus.CounterOpts{
			Name: "widget_audio_fragments_enqueued_total",
			Help: "Agent audio fragments queued for playback",
		}),
		FragmentsStale: f.NewCounter(prometheus.CounterOpts{
			Name: "widget_audio_fragments_stale_total",
			Help: "Agent audio fragments dropped at the interruption boundary",
		}),
		DecodeFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "widget_audio_decode_failures_total",
			Help: "Agent audio fragments that could not be decoded",
		}),
		PlaybackFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "widget_playback_failures_total",
			Help: "Fragments skipped because playback failed",
		}),
		PlaybackFlushed: f.NewCounter(prometheus.CounterOpts{
			Name: "widget_playback_flushed_total",
			Help: "Queued fragments discarded by a flush",
		}),
		Interruptions: f.NewCounter(prometheus.CounterOpts{
			Name: "widget_interruptions_total",
			Help: "Interruption notices received",
		}),
	}
}

// PlaybackFailed satisfies playback.Observer.
func (m *Metrics) PlaybackFailed(int, error) {
	m.PlaybackFailures.Inc()
}

func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
