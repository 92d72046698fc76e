// Package metrics exposes Prometheus instrumentation for the ledger
// engine. Counters register on the default registry; cmd/server serves
// them at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExpensesCreated counts expenses persisted with their splits.
	ExpensesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tally",
		Name:      "expenses_created_total",
		Help:      "Expenses created with their splits.",
	})

	// SettlementsApplied counts settlements committed, by status.
	SettlementsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tally",
		Name:      "settlements_applied_total",
		Help:      "Settlements committed.",
	}, []string{"status"})

	// SettlementConflicts counts settlement attempts that lost every
	// split to a concurrent or prior settlement.
	SettlementConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tally",
		Name:      "settlement_conflicts_total",
		Help:      "Settlement attempts rejected because every requested split was already settled.",
	})

	// SplitsSettled counts individual splits discharged by settlements.
	SplitsSettled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tally",
		Name:      "splits_settled_total",
		Help:      "Expense splits discharged by settlements.",
	})

	// ConsistencyErrors counts violated accounting invariants. Any
	// nonzero value indicates a bug and should alert.
	ConsistencyErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tally",
		Name:      "consistency_errors_total",
		Help:      "Internal consistency errors surfaced by the engine.",
	})

	// OpDuration observes wall time of public engine operations.
	OpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tally",
		Name:      "operation_duration_seconds",
		Help:      "Duration of public ledger operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
)
