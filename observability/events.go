package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// eventMetrics counts risk events by outcome: delivered after a commit, or
// dropped with a failed request.
type eventMetrics struct {
	emitted   *prometheus.CounterVec
	discarded *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		labels := []string{"type"}
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vaultrisk",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Risk events delivered after their request committed.",
			}, labels),
			discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vaultrisk",
				Subsystem: "events",
				Name:      "discarded_total",
				Help:      "Risk events dropped because their request failed.",
			}, labels),
		}
		prometheus.MustRegister(eventRegistry.emitted, eventRegistry.discarded)
	})
	return eventRegistry
}

func (m *eventMetrics) RecordEvent(kind string) {
	if m == nil {
		return
	}
	m.emitted.WithLabelValues(eventLabel(kind)).Inc()
}

func (m *eventMetrics) RecordDiscarded(kind string) {
	if m == nil {
		return
	}
	m.discarded.WithLabelValues(eventLabel(kind)).Inc()
}

func eventLabel(kind string) string {
	if kind = strings.TrimSpace(strings.ToLower(kind)); kind == "" {
		return "unknown"
	}
	return kind
}
