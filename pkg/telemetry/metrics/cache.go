package metrics

import (
	"taxlab-hq/ledger/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// CacheMetrics tracks lookups in the result cache.
//
// Metrics:
//   - ledger_api_cache_hits_total: requests answered from an existing entry
//   - ledger_api_cache_misses_total: requests that queued a new computation
//   - ledger_api_cache_pruned_total: entries of other versions deleted
//
// The hit rate of an endpoint is
//
//	rate(ledger_api_cache_hits_total{endpoint="population_reform"}[5m]) /
//	(rate(ledger_api_cache_hits_total{endpoint="population_reform"}[5m]) +
//	 rate(ledger_api_cache_misses_total{endpoint="population_reform"}[5m]))
type CacheMetrics struct {
	hitsTotal   *prometheus.CounterVec
	missesTotal *prometheus.CounterVec
	prunedTotal prometheus.Counter
}

// NewCacheMetrics creates and registers cache metrics with registry.
func NewCacheMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *CacheMetrics {
	cm := &CacheMetrics{
		hitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cache_hits_total",
				Help:      "Total number of requests answered from an existing cache entry",
			},
			[]string{"endpoint"},
		),

		missesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cache_misses_total",
				Help:      "Total number of requests that started a new computation",
			},
			[]string{"endpoint"},
		),

		prunedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cache_pruned_total",
				Help:      "Total number of cache entries of other versions deleted",
			},
		),
	}

	registry.MustRegister(cm.hitsTotal, cm.missesTotal, cm.prunedTotal)
	return cm
}

// RecordHit records a request served from an existing entry.
func (cm *CacheMetrics) RecordHit(endpoint string) {
	cm.hitsTotal.WithLabelValues(endpoint).Inc()
}

// RecordMiss records a request that queued a computation.
func (cm *CacheMetrics) RecordMiss(endpoint string) {
	cm.missesTotal.WithLabelValues(endpoint).Inc()
}

// RecordPruned records entries removed by a prune pass.
func (cm *CacheMetrics) RecordPruned(n int) {
	if n > 0 {
		cm.prunedTotal.Add(float64(n))
	}
}
