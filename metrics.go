package halyard

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors a Server or Connector records
// into. Every recording method is safe to call on a nil *Metrics, so metrics
// stay optional.
//
//	metrics := halyard.NewMetrics("chat")
//	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil { ... }
//	server.SetMetrics(metrics)
type Metrics struct {
	SessionsActive     prometheus.Gauge
	SessionsTotal      prometheus.Counter
	FramesReceived     prometheus.Counter
	FramesSent         prometheus.Counter
	FramesDropped      *prometheus.CounterVec
	RoutesDispatched   *prometheus.CounterVec
	RoutesMissed       prometheus.Counter
	LayerBlocks        *prometheus.CounterVec
	HandlerPanics      *prometheus.CounterVec
	AddressedDelivered prometheus.Counter
	AddressedMissed    prometheus.Counter
	AddressedRelayed   prometheus.Counter
	ConnectorState     prometheus.Gauge
	ConnectAttempts    prometheus.Counter
	Reconnects         prometheus.Counter
}

// NewMetrics creates the collectors under the given namespace. An empty
// namespace defaults to "halyard". The collectors are not registered; call
// Register.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "halyard"
	}

	return &Metrics{
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of open sessions",
		}),
		SessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total sessions opened",
		}),
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Total text frames read from transports",
		}),
		FramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Total text frames written to transports",
		}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Total frames vetoed by an interceptor",
		}, []string{"direction"}),
		RoutesDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routes_dispatched_total",
			Help:      "Total commands dispatched to a route",
		}, []string{"route"}),
		RoutesMissed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routes_missed_total",
			Help:      "Total commands with no matching route",
		}),
		LayerBlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "layer_blocks_total",
			Help:      "Total dispatches cancelled by a layer",
		}, []string{"route", "layer"}),
		HandlerPanics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_panics_total",
			Help:      "Total recovered route handler panics",
		}, []string{"route"}),
		AddressedDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "addressed_delivered_total",
			Help:      "Total addressed messages delivered to a local connection",
		}),
		AddressedMissed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "addressed_missed_total",
			Help:      "Total addressed messages dropped for an unknown connection",
		}),
		AddressedRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "addressed_relayed_total",
			Help:      "Total addressed messages handed to the relay",
		}),
		ConnectorState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connector_state",
			Help:      "Connector state: 0 connecting, 1 connected, 2 backoff",
		}),
		ConnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Total connector dial attempts",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Total times the connector entered backoff after a disconnect",
		}),
	}
}

// Register registers every collector with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	var errs []error
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.SessionsActive,
		m.SessionsTotal,
		m.FramesReceived,
		m.FramesSent,
		m.FramesDropped,
		m.RoutesDispatched,
		m.RoutesMissed,
		m.LayerBlocks,
		m.HandlerPanics,
		m.AddressedDelivered,
		m.AddressedMissed,
		m.AddressedRelayed,
		m.ConnectorState,
		m.ConnectAttempts,
		m.Reconnects,
	}
}

func (m *Metrics) sessionOpened() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
	m.SessionsTotal.Inc()
}

func (m *Metrics) sessionClosed() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

func (m *Metrics) frameReceived() {
	if m == nil {
		return
	}
	m.FramesReceived.Inc()
}

func (m *Metrics) frameSent() {
	if m == nil {
		return
	}
	m.FramesSent.Inc()
}

func (m *Metrics) frameDropped(direction Direction) {
	if m == nil {
		return
	}
	m.FramesDropped.WithLabelValues(direction.String()).Inc()
}

func (m *Metrics) routeDispatched(route string) {
	if m == nil {
		return
	}
	m.RoutesDispatched.WithLabelValues(route).Inc()
}

func (m *Metrics) routeMissed() {
	if m == nil {
		return
	}
	m.RoutesMissed.Inc()
}

func (m *Metrics) layerBlocked(route, layer string) {
	if m == nil {
		return
	}
	m.LayerBlocks.WithLabelValues(route, layer).Inc()
}

func (m *Metrics) handlerPanicked(route string) {
	if m == nil {
		return
	}
	m.HandlerPanics.WithLabelValues(route).Inc()
}

func (m *Metrics) addressedDelivered() {
	if m == nil {
		return
	}
	m.AddressedDelivered.Inc()
}

func (m *Metrics) addressedMissed() {
	if m == nil {
		return
	}
	m.AddressedMissed.Inc()
}

func (m *Metrics) addressedRelayed() {
	if m == nil {
		return
	}
	m.AddressedRelayed.Inc()
}

func (m *Metrics) connectorStateChanged(state ConnectorState) {
	if m == nil {
		return
	}
	m.ConnectorState.Set(float64(state))
}

func (m *Metrics) connectAttempted() {
	if m == nil {
		return
	}
	m.ConnectAttempts.Inc()
}

func (m *Metrics) reconnecting() {
	if m == nil {
		return
	}
	m.Reconnects.Inc()
}
