package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Sessions    prometheus.Gauge
	Events      *prometheus.CounterVec
	Dropped     prometheus.Counter
	RelayErrors prometheus.Counter
}

// NewMetrics registers the gateway collectors with reg. A nil reg keeps them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Sessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "chat",
			Subsystem: "gateway",
			Name:      "sessions",
			Help:      "Open WebSocket sessions on this instance.",
		}),
		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Subsystem: "gateway",
			Name:      "events_published_total",
			Help:      "Events published, by kind.",
		}, []string{"kind"}),
		Dropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chat",
			Subsystem: "gateway",
			Name:      "sessions_dropped_total",
			Help:      "Sessions closed because their send buffer was full.",
		}),
		RelayErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chat",
			Subsystem: "gateway",
			Name:      "relay_errors_total",
			Help:      "Publishes that could not be relayed to other instances.",
		}),
	}
}
