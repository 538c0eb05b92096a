package metrics

import "github.com/prometheus/client_golang/prometheus"

// RealtimeMetrics tracks in-process event fan-out and attached stream sessions.
type RealtimeMetrics struct {
	published   *prometheus.CounterVec
	deliveries  *prometheus.CounterVec
	failures    *prometheus.CounterVec
	subscribers *prometheus.GaugeVec
	sessions    *prometheus.GaugeVec
}

// NewRealtimeMetrics registers the realtime collectors on the provided registerer.
func NewRealtimeMetrics(reg prometheus.Registerer) *RealtimeMetrics {
	if reg == nil {
		return &RealtimeMetrics{}
	}
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "realtime",
		Name:      "events_published_total",
		Help:      "Events passed to Publish.",
	}, []string{"event"})
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "realtime",
		Name:      "deliveries_total",
		Help:      "Listener invocations that returned without error.",
	}, []string{"event"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "realtime",
		Name:      "listener_failures_total",
		Help:      "Listener invocations that errored or panicked.",
	}, []string{"event"})
	subscribers := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "realtime",
		Name:      "subscribers",
		Help:      "Registered listeners per event.",
	}, []string{"event"})
	sessions := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "realtime",
		Name:      "sessions",
		Help:      "Attached streaming sessions per stream.",
	}, []string{"stream"})
	reg.MustRegister(published, deliveries, failures, subscribers, sessions)
	return &RealtimeMetrics{
		published:   published,
		deliveries:  deliveries,
		failures:    failures,
		subscribers: subscribers,
		sessions:    sessions,
	}
}

func (m *RealtimeMetrics) IncPublished(event string) {
	if m == nil || m.published == nil {
		return
	}
	m.published.WithLabelValues(normalizeLabel(event)).Inc()
}

func (m *RealtimeMetrics) IncDelivered(event string) {
	if m == nil || m.deliveries == nil {
		return
	}
	m.deliveries.WithLabelValues(normalizeLabel(event)).Inc()
}

func (m *RealtimeMetrics) IncListenerFailure(event string) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.WithLabelValues(normalizeLabel(event)).Inc()
}

// SetSubscribers records the current listener count for an event.
func (m *RealtimeMetrics) SetSubscribers(event string, n int) {
	if m == nil || m.subscribers == nil {
		return
	}
	m.subscribers.WithLabelValues(normalizeLabel(event)).Set(float64(n))
}

// SetSessions records the number of sessions attached to one stream.
func (m *RealtimeMetrics) SetSessions(stream string, n int) {
	if m == nil || m.sessions == nil {
		return
	}
	m.sessions.WithLabelValues(normalizeLabel(stream)).Set(float64(n))
}
