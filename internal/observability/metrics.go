// Package observability holds the prometheus metrics for the scheduling
// core, named and grouped the way the teacher's observability/metrics.go
// does (one promauto var block, a short Help string per metric, labels only
// where there's a real cardinality need).
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDepth is set by each claim-loop tick to 1 when a ready QueueItem
	// was found and 0 when none was; it does not count the items in the queue.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_queue_depth",
		Help: "1 if the last claim-loop tick found a ready QueueItem, else 0",
	})

	// ClaimAttempts tracks claim-loop CAS outcomes.
	ClaimAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_claim_attempts_total",
		Help: "Claim-loop CAS attempts by outcome",
	}, []string{"outcome"}) // claimed, conflict, empty

	// Dispatches tracks dispatch-worker outcomes.
	Dispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_dispatches_total",
		Help: "Dispatch worker outcomes by result",
	}, []string{"outcome"}) // scheduled, policy_delayed, dropped_terminal, dropped_not_runnable, not_found, error

	// DispatchDuration tracks the wall time of a single dispatch worker run.
	DispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scheduler_dispatch_duration_seconds",
		Help:    "Duration of a single dispatch worker invocation",
		Buckets: prometheus.DefBuckets,
	})

	// GCReclaimed tracks QueueItems the GC loop reset to handling=false.
	GCReclaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_gc_reclaimed_total",
		Help: "Orphaned QueueItems reclaimed by the GC loop",
	})

	// GCConflicts tracks GC writes that lost the CAS race to another writer.
	GCConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_gc_conflicts_total",
		Help: "GC loop writes that hit a write conflict (item updated before reclaim)",
	})

	// LoopDuration tracks the wall time of one claim-loop tick.
	LoopDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scheduler_claim_loop_duration_seconds",
		Help:    "Duration of one claim-loop tick",
		Buckets: prometheus.DefBuckets,
	})
)
