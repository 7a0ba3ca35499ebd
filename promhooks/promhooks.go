// Package promhooks exports querycache events as Prometheus counters.
//
//	reg := prometheus.NewRegistry()
//	store, _ := querycache.New(querycache.Options{Hooks: promhooks.New(reg, "storefront")})
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
package promhooks

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/unkn0wn-root/querycache"
)

// Hooks counts events. Key labels are deliberately absent: keys are
// unbounded and would explode series cardinality.
type Hooks struct {
	ReadsDeduplicated prometheus.Counter
	StaleDiscarded    *prometheus.CounterVec // reason
	SelfHeals         *prometheus.CounterVec // reason
	SetRejected       prometheus.Counter
	GenStoreErrors    *prometheus.CounterVec // op
	Rollbacks         *prometheus.CounterVec // mutation
	RestoredKeys      prometheus.Counter
	MissingSnapshots  *prometheus.CounterVec // mutation
	Evicted           prometheus.Counter
}

var _ querycache.Hooks = (*Hooks)(nil)

// New registers the counters on reg under namespace.
// A nil reg registers on prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer, namespace string) *Hooks {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	const sub = "querycache"
	return &Hooks{
		ReadsDeduplicated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: sub,
			Name: "reads_deduplicated_total",
			Help: "Reads that attached to a call already in flight.",
		}),
		StaleDiscarded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: sub,
			Name: "stale_responses_discarded_total",
			Help: "Read results dropped instead of committed.",
		}, []string{"reason"}),
		SelfHeals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: sub,
			Name: "self_heals_total",
			Help: "Entries whose provider value was lost or invalid.",
		}, []string{"reason"}),
		SetRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: sub,
			Name: "provider_set_rejected_total",
			Help: "Provider writes rejected under pressure.",
		}),
		GenStoreErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: sub,
			Name: "genstore_errors_total",
			Help: "Generation store failures.",
		}, []string{"op"}),
		Rollbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: sub,
			Name: "mutation_rollbacks_total",
			Help: "Failed mutations rolled back from their snapshot.",
		}, []string{"mutation"}),
		RestoredKeys: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: sub,
			Name: "mutation_restored_keys_total",
			Help: "Keys restored by rollbacks.",
		}),
		MissingSnapshots: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: sub,
			Name: "mutation_snapshot_missing_total",
			Help: "Optimistic writes that had no snapshot on rollback.",
		}, []string{"mutation"}),
		Evicted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: sub,
			Name: "entries_evicted_total",
			Help: "Unobserved entries dropped by the sweep.",
		}),
	}
}

func (h *Hooks) ReadDeduplicated(string) { h.ReadsDeduplicated.Inc() }
func (h *Hooks) StaleResponseDiscarded(_, reason string) {
	h.StaleDiscarded.WithLabelValues(reason).Inc()
}
func (h *Hooks) SelfHeal(_, reason string)  { h.SelfHeals.WithLabelValues(reason).Inc() }
func (h *Hooks) ProviderSetRejected(string) { h.SetRejected.Inc() }
func (h *Hooks) GenStoreError(op string, _ error) {
	h.GenStoreErrors.WithLabelValues(op).Inc()
}
func (h *Hooks) RollbackApplied(mutation string, restored int) {
	h.Rollbacks.WithLabelValues(mutation).Inc()
	h.RestoredKeys.Add(float64(restored))
}
func (h *Hooks) SnapshotMissing(mutation, _ string) {
	h.MissingSnapshots.WithLabelValues(mutation).Inc()
}
func (h *Hooks) EntriesEvicted(n int) { h.Evicted.Add(float64(n)) }
