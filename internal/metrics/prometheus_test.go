package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordCaptureStarted()
	m.RecordFragmentPublished("ok")
	m.RecordSessionDiscovered("self")
	m.RecordHTTPRequest("GET", "/ping", "200", 0.01)
}

func TestCountersByLabel(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordFragmentPublished("ok")
	m.RecordFragmentPublished("ok")
	m.RecordFragmentPublished("failed")
	m.RecordSessionDiscovered("stale")

	if got := testutil.ToFloat64(m.FragmentsPublished.WithLabelValues("ok")); got != 2 {
		t.Errorf("ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.FragmentsPublished.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SessionsDiscovered.WithLabelValues("stale")); got != 1 {
		t.Errorf("stale = %v, want 1", got)
	}
}

func TestSeparateRegistries(t *testing.T) {
	// two nodes in one process must not collide
	a := NewMetrics(prometheus.NewRegistry())
	b := NewMetrics(prometheus.NewRegistry())
	a.RecordDecodeFailure()
	if testutil.ToFloat64(b.DecodeFailures) != 0 {
		t.Fatal("registries share state")
	}
}
