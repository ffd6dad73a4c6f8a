package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewWithRegistererRegistersMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()

	m := NewWithRegisterer(registry)

	if m.LotsIssued == nil || m.Transfers == nil || m.OperationDuration == nil {
		t.Fatalf("expected key metrics to be initialized: %+v", m)
	}

	m.LotsIssued.Inc()
	m.Transfers.WithLabelValues("sale", "in_place").Inc()

	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	if len(metricFamilies) == 0 {
		t.Fatalf("expected registered metrics, got none")
	}

	if got := testutil.ToFloat64(m.LotsIssued); got != 1 {
		t.Fatalf("expected lots issued 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.Transfers.WithLabelValues("sale", "in_place")); got != 1 {
		t.Fatalf("expected one in-place sale, got %v", got)
	}
}

func TestNewWithRegistererIsolatesRegistries(t *testing.T) {
	// Two registries must not collide on metric names.
	_ = NewWithRegisterer(prometheus.NewRegistry())
	_ = NewWithRegisterer(prometheus.NewRegistry())
}
