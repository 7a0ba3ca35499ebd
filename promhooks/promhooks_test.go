package promhooks

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestRollbackCountsMutationAndKeys(t *testing.T) {
	h := New(prometheus.NewRegistry(), "test")

	h.RollbackApplied("toggleFavorite", 2)
	h.RollbackApplied("toggleFavorite", 1)
	h.SnapshotMissing("clearCart", "cart")

	if got := counterValue(t, h.Rollbacks.WithLabelValues("toggleFavorite")); got != 2 {
		t.Fatalf("rollbacks=%v want 2", got)
	}
	if got := counterValue(t, h.RestoredKeys); got != 3 {
		t.Fatalf("restored=%v want 3", got)
	}
	if got := counterValue(t, h.MissingSnapshots.WithLabelValues("clearCart")); got != 1 {
		t.Fatalf("snapshot missing=%v want 1", got)
	}
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	_ = New(prometheus.NewRegistry(), "a")
	_ = New(prometheus.NewRegistry(), "a")
}
