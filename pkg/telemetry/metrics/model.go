package metrics

import (
	"time"

	"taxlab-hq/ledger/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// ModelMetrics tracks the microsimulation machinery behind the API.
//
// Metrics:
//   - ledger_api_catalog_builds_total: lever catalog builds by country
//   - ledger_api_catalog_build_duration_seconds: catalog build time
//   - ledger_api_catalog_levers: levers in the most recent catalog
//   - ledger_api_decomposition_steps_total: intermediate simulations measured
//   - ledger_api_decomposition_step_duration_seconds: time per step
//   - ledger_api_dataset_refetches_total: datasets fetched again after a failed load
type ModelMetrics struct {
	catalogBuilds        *prometheus.CounterVec
	catalogBuildDuration *prometheus.HistogramVec
	catalogLevers        *prometheus.GaugeVec
	decompositionSteps   *prometheus.CounterVec
	stepDuration         *prometheus.HistogramVec
	datasetRefetches     *prometheus.CounterVec
}

// NewModelMetrics creates and registers model metrics with registry.
func NewModelMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ModelMetrics {
	mm := &ModelMetrics{
		catalogBuilds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "catalog_builds_total",
				Help:      "Total number of lever catalog builds",
			},
			[]string{"country"},
		),

		catalogBuildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "catalog_build_duration_seconds",
				Help:      "Time to build a lever catalog in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 4, 7), // 1ms to ~4s
			},
			[]string{"country"},
		),

		catalogLevers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "catalog_levers",
				Help:      "Number of levers in the most recently built catalog",
			},
			[]string{"country"},
		),

		decompositionSteps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "decomposition_steps_total",
				Help:      "Total number of decomposition steps measured",
			},
			[]string{"country"},
		),

		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "decomposition_step_duration_seconds",
				Help:      "Time to simulate and measure one decomposition step in seconds",
				Buckets:   cfg.TaskDurationBuckets,
			},
			[]string{"country"},
		),

		datasetRefetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "dataset_refetches_total",
				Help:      "Total number of datasets fetched again after a failed load",
			},
			[]string{"country", "reason"},
		),
	}

	registry.MustRegister(
		mm.catalogBuilds,
		mm.catalogBuildDuration,
		mm.catalogLevers,
		mm.decompositionSteps,
		mm.stepDuration,
		mm.datasetRefetches,
	)
	return mm
}

// RecordCatalogBuild records one catalog build.
func (mm *ModelMetrics) RecordCatalogBuild(country string, levers int, elapsed time.Duration) {
	mm.catalogBuilds.WithLabelValues(country).Inc()
	mm.catalogBuildDuration.WithLabelValues(country).Observe(elapsed.Seconds())
	mm.catalogLevers.WithLabelValues(country).Set(float64(levers))
}

// RecordDecompositionStep records one measured decomposition step.
func (mm *ModelMetrics) RecordDecompositionStep(country string, elapsed time.Duration) {
	mm.decompositionSteps.WithLabelValues(country).Inc()
	mm.stepDuration.WithLabelValues(country).Observe(elapsed.Seconds())
}

// RecordDatasetRefetch records a dataset fetched again. reason is
// "missing" or "corrupt".
func (mm *ModelMetrics) RecordDatasetRefetch(country, reason string) {
	mm.datasetRefetches.WithLabelValues(country, reason).Inc()
}
