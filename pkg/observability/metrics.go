package observability

import (
	"context"
	"net/http"

	"github.com/aretw0/tasktree/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "tasktree"

// Metrics holds the engine collectors.
type Metrics struct {
	registry *prometheus.Registry

	transitions  *prometheus.CounterVec
	nodeDuration *prometheus.HistogramVec
	advances     prometheus.Counter
	completions  prometheus.Counter
	records      *prometheus.CounterVec
	turns        *prometheus.CounterVec
	turnDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on a dedicated registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "node_transitions_total",
			Help:      "Node state transitions by node kind and target state.",
		}, []string{"kind", "state"}),
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "node_duration_seconds",
			Help:      "Time from Executing to Complete or Error.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"kind", "state"}),
		advances: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cursor_advances_total",
			Help:      "Cursor moves.",
		}),
		completions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "traversals_completed_total",
			Help:      "Traversals that exhausted their graph.",
		}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "session_record_events_total",
			Help:      "Session record notifications by record kind.",
		}, []string{"kind"}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "model_turns_total",
			Help:      "Model turns by backend and outcome.",
		}, []string{"backend", "outcome"}),
		turnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "model_turn_duration_seconds",
			Help:      "Duration of streamed model turns.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"backend"}),
	}
	m.registry.MustRegister(
		m.transitions, m.nodeDuration, m.advances, m.completions,
		m.records, m.turns, m.turnDuration,
	)
	return m
}

// Registry exposes the underlying registry, e.g. for additional collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Hooks returns lifecycle hooks feeding the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStateChange: func(_ context.Context, e *domain.NodeEvent) {
			m.transitions.WithLabelValues(string(e.Kind), string(e.To)).Inc()
			if e.Duration > 0 {
				m.nodeDuration.WithLabelValues(string(e.Kind), string(e.To)).Observe(e.Duration.Seconds())
			}
		},
		OnAdvance: func(_ context.Context, e *domain.AdvanceEvent) {
			if e.Done {
				m.completions.Inc()
				return
			}
			m.advances.Inc()
		},
		OnRecord: func(_ context.Context, e *domain.RecordEvent) {
			m.records.WithLabelValues(string(e.Record.Kind)).Inc()
		},
		OnTurn: func(_ context.Context, e *domain.TurnEvent) {
			outcome := "ok"
			if e.Err != "" {
				outcome = "error"
			}
			m.turns.WithLabelValues(e.Backend, outcome).Inc()
			m.turnDuration.WithLabelValues(e.Backend).Observe(e.Duration.Seconds())
		},
	}
}
