package metrics

import "github.com/prometheus/client_golang/prometheus"

// NotificationMetrics counts notification writes by type and outcome.
type NotificationMetrics struct {
	created    *prometheus.CounterVec
	suppressed *prometheus.CounterVec
	expired    prometheus.Counter
}

// NewNotificationMetrics registers the notification collectors on the provided registerer.
func NewNotificationMetrics(reg prometheus.Registerer) *NotificationMetrics {
	if reg == nil {
		return &NotificationMetrics{}
	}
	created := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifications",
		Name:      "created_total",
		Help:      "Notifications persisted.",
	}, []string{"type"})
	suppressed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifications",
		Name:      "suppressed_total",
		Help:      "Notifications skipped because the user disabled the type.",
	}, []string{"type"})
	expired := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifications",
		Name:      "expired_deleted_total",
		Help:      "Expired notifications removed by cleanup.",
	})
	reg.MustRegister(created, suppressed, expired)
	return &NotificationMetrics{created: created, suppressed: suppressed, expired: expired}
}

func (m *NotificationMetrics) AddCreated(notificationType string, n int) {
	if m == nil || m.created == nil || n <= 0 {
		return
	}
	m.created.WithLabelValues(normalizeLabel(notificationType)).Add(float64(n))
}

func (m *NotificationMetrics) IncSuppressed(notificationType string) {
	if m == nil || m.suppressed == nil {
		return
	}
	m.suppressed.WithLabelValues(normalizeLabel(notificationType)).Inc()
}

func (m *NotificationMetrics) AddExpiredDeleted(n int64) {
	if m == nil || m.expired == nil || n <= 0 {
		return
	}
	m.expired.Add(float64(n))
}
