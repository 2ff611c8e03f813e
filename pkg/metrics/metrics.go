// Package metrics exposes Prometheus metrics for the pipeline: rows
// moved, stage durations, retries, and quality check outcomes. The
// dashboard serves them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RowsLoaded counts rows inserted into the warehouse per table.
	RowsLoaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "olistflow",
			Name:      "rows_loaded_total",
			Help:      "Rows inserted into the warehouse",
		},
		[]string{"table"},
	)

	// TablesSkipped counts smart-skip decisions per table.
	TablesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "olistflow",
			Name:      "tables_skipped_total",
			Help:      "Tables skipped because the warehouse already matched the source",
		},
		[]string{"table"},
	)

	// LoadDuration tracks per-table load durations in seconds.
	LoadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "olistflow",
			Name:      "table_load_duration_seconds",
			Help:      "Time spent loading one table",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"table"},
	)

	// StageDuration tracks pipeline stage durations in seconds.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "olistflow",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in one pipeline stage",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 14),
		},
		[]string{"stage"},
	)

	// StageRetries counts stage retry attempts.
	StageRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "olistflow",
			Name:      "stage_retries_total",
			Help:      "Retry attempts per pipeline stage",
		},
		[]string{"stage"},
	)

	// PipelineRuns counts completed runs by result.
	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "olistflow",
			Name:      "pipeline_runs_total",
			Help:      "Completed pipeline runs by result",
		},
		[]string{"result"},
	)

	// QualityChecks counts data quality check outcomes.
	QualityChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "olistflow",
			Name:      "quality_checks_total",
			Help:      "Data quality check outcomes",
		},
		[]string{"status"},
	)
)
