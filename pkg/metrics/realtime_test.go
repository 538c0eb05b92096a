package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRealtimeMetricsExport(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRealtimeMetrics(reg)
	m.IncPublished("slip-uploaded")
	m.IncDelivered("slip-uploaded")
	m.IncDelivered("slip-uploaded")
	m.IncListenerFailure("slip-uploaded")
	m.SetSubscribers("slip-uploaded", 4)
	m.SetSessions("admin", 2)
	m.SetSessions("member", 5)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "loyalty_realtime_deliveries_total", "event", "slip-uploaded"); err != nil {
		t.Fatalf("fetch deliveries: %v", err)
	} else if got != 2 {
		t.Fatalf("expected deliveries=2, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "loyalty_realtime_listener_failures_total", "event", "slip-uploaded"); err != nil {
		t.Fatalf("fetch failures: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failures=1, got %f", got)
	}

	subscribers := findMetricFamily(mfs, "loyalty_realtime_subscribers")
	if subscribers == nil || subscribers.GetMetric()[0].GetGauge().GetValue() != 4 {
		t.Fatalf("expected subscribers gauge 4")
	}
	if got, err := fetchGaugeValue(mfs, "loyalty_realtime_sessions", "stream", "member"); err != nil {
		t.Fatalf("fetch member sessions: %v", err)
	} else if got != 5 {
		t.Fatalf("expected member sessions=5, got %f", got)
	}
	if got, err := fetchGaugeValue(mfs, "loyalty_realtime_sessions", "stream", "admin"); err != nil {
		t.Fatalf("fetch admin sessions: %v", err)
	} else if got != 2 {
		t.Fatalf("expected admin sessions=2, got %f", got)
	}
}

func TestNotificationMetricsExport(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewNotificationMetrics(reg)
	m.AddCreated("reward", 3)
	m.AddCreated("reward", 0)
	m.IncSuppressed("survey")
	m.AddExpiredDeleted(5)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "loyalty_notifications_created_total", "type", "reward"); err != nil {
		t.Fatalf("fetch created: %v", err)
	} else if got != 3 {
		t.Fatalf("expected created=3, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "loyalty_notifications_suppressed_total", "type", "survey"); err != nil {
		t.Fatalf("fetch suppressed: %v", err)
	} else if got != 1 {
		t.Fatalf("expected suppressed=1, got %f", got)
	}
	expired := findMetricFamily(mfs, "loyalty_notifications_expired_deleted_total")
	if expired == nil || expired.GetMetric()[0].GetCounter().GetValue() != 5 {
		t.Fatalf("expected expired counter 5")
	}
}
