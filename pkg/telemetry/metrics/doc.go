// Package metrics exposes Ledger's Prometheus metrics.
//
// # Metrics
//
//   - Requests: count, latency and in-flight gauge per country and endpoint
//   - Cache: hits and misses per endpoint, entries pruned
//   - Tasks: background computations by terminal status, run time, running gauge
//   - Model: catalog builds, decomposition steps and dataset refetches
//
// Every metric is registered with a private registry owned by the
// Collector rather than the global default one, so tests can build as many
// collectors as they like.
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	runner, _ := tasks.NewRunner(backend, tasks.Config{Observer: collector, ...})
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
// With the default namespace and subsystem a scrape looks like
//
//	# HELP ledger_api_cache_hits_total Total number of requests answered from an existing cache entry
//	# TYPE ledger_api_cache_hits_total counter
//	ledger_api_cache_hits_total{endpoint="population_reform"} 12
//
// # Cardinality
//
// Request label sets are capped at DefaultMaxCardinality. Past the cap,
// new endpoint names are recorded as "other".
package metrics
