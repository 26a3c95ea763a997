package update

import (
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// coordinatorMetrics is the metric set owned by one coordinator.
type coordinatorMetrics struct {
	set *metrics.Set

	adds      *metrics.Counter
	patches   *metrics.Counter
	deletes   *metrics.Counter
	conflicts *metrics.Counter
	skipped   *metrics.Counter
	errors    *metrics.Counter

	duration *metrics.Histogram
	gateWait *metrics.Histogram
}

func newCoordinatorMetrics() *coordinatorMetrics {
	set := metrics.NewSet()
	return &coordinatorMetrics{
		set:       set,
		adds:      set.NewCounter(`ddoc_updates_total{op="add"}`),
		patches:   set.NewCounter(`ddoc_updates_total{op="patch"}`),
		deletes:   set.NewCounter(`ddoc_updates_total{op="delete"}`),
		conflicts: set.NewCounter("ddoc_update_conflicts_total"),
		skipped:   set.NewCounter("ddoc_update_skipped_total"),
		errors:    set.NewCounter("ddoc_update_errors_total"),
		duration:  set.NewHistogram("ddoc_update_duration_seconds"),
		gateWait:  set.NewHistogram("ddoc_gate_wait_seconds"),
	}
}

// Stats is a point in time copy of the coordinator counters.
type Stats struct {
	Adds      uint64
	Patches   uint64
	Deletes   uint64
	Conflicts uint64
	Skipped   uint64
	Errors    uint64
}

func (m *coordinatorMetrics) stats() Stats {
	return Stats{
		Adds:      m.adds.Get(),
		Patches:   m.patches.Get(),
		Deletes:   m.deletes.Get(),
		Conflicts: m.conflicts.Get(),
		Skipped:   m.skipped.Get(),
		Errors:    m.errors.Get(),
	}
}

func (m *coordinatorMetrics) writePrometheus(w io.Writer) {
	m.set.WritePrometheus(w)
}
