package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSchedulingMetricsRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSchedulingMetrics(reg)

	m.ObserveDecision("reschedule", "ok")
	m.ObserveDecision("reschedule", "too_late")
	m.ObserveDecision("reschedule", "too_late")
	m.ObserveSlots(16)

	if got := testutil.ToFloat64(m.decisions.WithLabelValues("reschedule", "too_late")); got != 2 {
		t.Fatalf("too_late count = %v, want 2", got)
	}
	if got := testutil.CollectAndCount(m.slots); got != 1 {
		t.Fatalf("slots histogram series = %d, want 1", got)
	}
}

func TestSchedulingMetricsNilSafe(t *testing.T) {
	var m *SchedulingMetrics
	m.ObserveDecision("book", "ok")
	m.ObserveSlots(3)
}

func TestHTTPMetricsRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	m.ObserveRequest("GET", "/v1/availability", 200, 15*time.Millisecond)
	m.ObserveRequest("GET", "", 404, time.Millisecond)

	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/v1/availability", "200")); got != 1 {
		t.Fatalf("availability count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Fatalf("unmatched count = %v, want 1", got)
	}

	var nilMetrics *HTTPMetrics
	nilMetrics.ObserveRequest("GET", "/", 200, time.Millisecond)
}
