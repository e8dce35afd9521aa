package livequery

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "livequery"

type metrics struct {
	invalidations *prometheus.CounterVec
	callbacks     *prometheus.CounterVec
	inflight      prometheus.Gauge
}

func newMetrics(registerer prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "invalidations_total",
			Help:      "Invalidation requests by collection, kind and outcome",
		}, []string{"collection", "kind", "outcome"}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "callbacks_total",
			Help:      "Cursor callbacks issued by collection and callback",
		}, []string{"collection", "callback"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "inflight_fetches",
			Help:      "Refresh fetches currently in flight",
		}),
	}
	for _, c := range []prometheus.Collector{m.invalidations, m.callbacks, m.inflight} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *metrics) invalidation(collection string, kind EventKind, outcome Outcome) {
	if m == nil {
		return
	}
	m.invalidations.WithLabelValues(collection, string(kind), string(outcome)).Inc()
}

func (m *metrics) callback(collection string, callback string) {
	if m == nil {
		return
	}
	m.callbacks.WithLabelValues(collection, callback).Inc()
}

func (m *metrics) fetchStarted() {
	if m == nil {
		return
	}
	m.inflight.Inc()
}

func (m *metrics) fetchDone() {
	if m == nil {
		return
	}
	m.inflight.Dec()
}
