package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Session events.
const (
	EventStarted          = "started"
	EventRestarted        = "restarted"
	EventEndedHostility   = "ended_hostility"
	EventEndedTurnLimit   = "ended_turn_limit"
	EventEndedInactivity  = "ended_inactivity"
	EventRejectedTooLong  = "rejected_too_long"
	EventRejectedInactive = "rejected_inactive"
	EventBoundaryWarning  = "boundary_warning"
	EventEvicted          = "evicted"
)

// Metrics groups all Prometheus instruments used by the service. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ActiveSessions     prometheus.Gauge
	SessionEvents      *prometheus.CounterVec
	Turns              *prometheus.CounterVec
	Sentiment          prometheus.Histogram
	GenerationLatency  *prometheus.HistogramVec
	GenerationFailures *prometheus.CounterVec
	TranscriptErrors   prometheus.Counter
	WSMessages         *prometheus.CounterVec
}

// NewMetrics registers every instrument on a fresh registry, so several
// instances can coexist in tests.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of sessions in the ACTIVE phase.",
		}),
		SessionEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Submitted turns by outcome.",
		}, []string{"outcome"}),
		Sentiment: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_sentiment",
			Help:      "Sentiment polarity of scored clinician messages.",
			Buckets:   []float64{-0.8, -0.6, -0.4, -0.3, -0.2, 0, 0.2, 0.4, 0.6, 0.8, 1},
		}),
		GenerationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_latency_ms",
			Help:      "Upstream generation latency in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 7000, 10000},
		}, []string{"provider"}),
		GenerationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_failures_total",
			Help:      "Upstream generation failures replaced by the fallback reply.",
		}, []string{"provider"}),
		TranscriptErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_errors_total",
			Help:      "Transcript appends that failed and were dropped.",
		}),
		WSMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
	}
}

// ObserveGeneration records one upstream call.
func (m *Metrics) ObserveGeneration(provider string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.GenerationLatency.WithLabelValues(provider).Observe(float64(elapsed.Milliseconds()))
	if err != nil {
		m.GenerationFailures.WithLabelValues(provider).Inc()
	}
}

// SessionEvent counts a lifecycle event.
func (m *Metrics) SessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

// ActiveDelta moves the active session gauge.
func (m *Metrics) ActiveDelta(delta float64) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(delta)
}

// ObserveTurn counts a turn outcome.
func (m *Metrics) ObserveTurn(outcome string) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(outcome).Inc()
}

// ObserveSentiment records a scored message.
func (m *Metrics) ObserveSentiment(score float64) {
	if m == nil {
		return
	}
	m.Sentiment.Observe(score)
}

// TranscriptError counts a dropped transcript record.
func (m *Metrics) TranscriptError() {
	if m == nil {
		return
	}
	m.TranscriptErrors.Inc()
}

// WSMessage counts a websocket frame.
func (m *Metrics) WSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves this instance's registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
