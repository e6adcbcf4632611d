// Package observability holds the service's Prometheus metrics. The metrics
// endpoint itself is mounted by the web adapter.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EntriesPosted counts journal entries created, by entry type.
var EntriesPosted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ledger",
	Subsystem: "posting",
	Name:      "entries_total",
	Help:      "Total journal entries posted, by entry type.",
}, []string{"entry_type"})

// DuplicateEntries counts idempotent re-submissions answered with the
// existing entry.
var DuplicateEntries = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ledger",
	Subsystem: "posting",
	Name:      "duplicate_entries_total",
	Help:      "Total entry submissions resolved to an existing entry.",
})

// EntryViolations counts rejected drafts by violation code.
var EntryViolations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ledger",
	Subsystem: "posting",
	Name:      "violations_total",
	Help:      "Total draft entries rejected, by violation code.",
}, []string{"code"})

// PipelineRuns counts pipeline outcomes.
var PipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ledger",
	Subsystem: "reconciliation",
	Name:      "pipeline_runs_total",
	Help:      "Total pipeline runs, by final status.",
}, []string{"outcome"})

// PipelineStepDuration tracks per-step latency.
var PipelineStepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "ledger",
	Subsystem: "reconciliation",
	Name:      "step_duration_seconds",
	Help:      "Duration of individual pipeline steps.",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
}, []string{"step", "status"})

// BatchDuration tracks whole-batch latency.
var BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "ledger",
	Subsystem: "reconciliation",
	Name:      "batch_duration_seconds",
	Help:      "Duration of full batch reconciliation runs.",
	Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
})

// BatchSize tracks how many transactions the last batches picked up.
var BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "ledger",
	Subsystem: "reconciliation",
	Name:      "batch_size",
	Help:      "Transactions processed per batch run.",
	Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
})

// IdentificationMethods counts counterparty identifications by cascade rung.
var IdentificationMethods = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ledger",
	Subsystem: "reconciliation",
	Name:      "identifications_total",
	Help:      "Total counterparty identifications, by method.",
}, []string{"method"})

// SuspenseBalance reports undrained transitory account balances observed by
// the last health check.
var SuspenseBalance = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "ledger",
	Subsystem: "health",
	Name:      "suspense_balance",
	Help:      "Net balance of transitory accounts that should drain to zero.",
}, []string{"account_code"})

// AuditRecordsWritten counts audit chain appends by action.
var AuditRecordsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ledger",
	Subsystem: "audit",
	Name:      "records_total",
	Help:      "Total audit records appended, by action.",
}, []string{"action"})
