// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SubjectsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_subjects_processed_total",
			Help: "Total number of subjects processed per run outcome",
		},
		[]string{"status"},
	)

	SubjectsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_subjects_failed_total",
			Help: "Total number of subjects that exhausted retries",
		},
		[]string{"error_code"},
	)

	SupplementedItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_supplemented_items_total",
			Help: "Items added by the supplement engine, by source",
		},
		[]string{"source"}, // pool | fallback
	)

	DiversityNotMet = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "batch_diversity_not_met_total",
			Help: "Allocations that could not satisfy the category diversity floor",
		},
	)

	QualityWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_quality_warnings_total",
			Help: "Data quality issues recovered by clamping or defaulting",
		},
		[]string{"kind"},
	)

	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batch_run_duration_seconds",
			Help:    "Duration of a full batch run in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	SubjectDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batch_subject_duration_seconds",
			Help:    "Duration of one subject pipeline in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	WorkersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "batch_workers_active",
			Help: "Number of in-flight subject pipelines",
		},
	)
)
