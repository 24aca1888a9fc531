package metrics

import (
	"sync"
	"time"

	"taxlab-hq/ledger/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// DefaultMaxCardinality bounds the distinct request label sets tracked.
const DefaultMaxCardinality = 10000

// Collector owns every Ledger metric and the private registry they are
// registered with. It satisfies the task runner's Observer interface, so
// the runner reports cache hits and task lifecycles straight into it.
//
// All Record methods are no-ops when metrics are disabled.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	requestMetrics *RequestMetrics
	cacheMetrics   *CacheMetrics
	taskMetrics    *TaskMetrics
	modelMetrics   *ModelMetrics

	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a collector. A nil registry gets a fresh one with
// the Go runtime and process collectors registered.
//
// Example:
//
//	cfg := config.Default().Telemetry.Metrics
//	collector := metrics.NewCollector(&cfg, nil)
//	mux.Handle(cfg.Path, collector.Handler())
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: cfg.Namespace}),
		)
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = config.DefaultMetricsSubsystem
	}
	if len(cfg.RequestDurationBuckets) == 0 {
		cfg.RequestDurationBuckets = append([]float64(nil), config.DefaultRequestDurationBuckets...)
	}
	if len(cfg.TaskDurationBuckets) == 0 {
		cfg.TaskDurationBuckets = append([]float64(nil), config.DefaultTaskDurationBuckets...)
	}

	return &Collector{
		config:             cfg,
		registry:           registry,
		requestMetrics:     NewRequestMetrics(cfg, registry),
		cacheMetrics:       NewCacheMetrics(cfg, registry),
		taskMetrics:        NewTaskMetrics(cfg, registry),
		modelMetrics:       NewModelMetrics(cfg, registry),
		cardinalityLimiter: NewCardinalityLimiter(DefaultMaxCardinality),
	}
}

// Enabled reports whether metrics are collected.
func (c *Collector) Enabled() bool {
	return c.config.Enabled
}

// RecordRequest records a completed API request. Once the cardinality
// limit is reached, new endpoint names are folded into "other".
//
// Example:
//
//	collector.RecordRequest("uk", "population_reform", "2xx", 40*time.Millisecond)
func (c *Collector) RecordRequest(country, endpoint, status string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	if !c.cardinalityLimiter.Allow(country + ":" + endpoint + ":" + status) {
		endpoint = "other"
	}
	c.requestMetrics.RecordRequest(country, endpoint, status, duration)
}

// RequestStarted marks a request in flight.
func (c *Collector) RequestStarted() {
	if c.config.Enabled {
		c.requestMetrics.Started()
	}
}

// RequestFinished clears a request started with RequestStarted.
func (c *Collector) RequestFinished() {
	if c.config.Enabled {
		c.requestMetrics.Finished()
	}
}

// RecordCacheHit records a request answered from an existing entry.
func (c *Collector) RecordCacheHit(endpoint string) {
	if !c.config.Enabled {
		return
	}
	c.cacheMetrics.RecordHit(endpoint)
}

// RecordCacheMiss records a request that queued a computation.
func (c *Collector) RecordCacheMiss(endpoint string) {
	if !c.config.Enabled {
		return
	}
	c.cacheMetrics.RecordMiss(endpoint)
}

// RecordCachePruned records entries removed by a prune pass.
func (c *Collector) RecordCachePruned(n int) {
	if !c.config.Enabled {
		return
	}
	c.cacheMetrics.RecordPruned(n)
}

// TaskStarted records a cached computation acquiring a worker.
func (c *Collector) TaskStarted(endpoint string) {
	if !c.config.Enabled {
		return
	}
	c.taskMetrics.Started(endpoint)
}

// TaskFinished records a cached computation reaching status "completed" or
// "error".
func (c *Collector) TaskFinished(endpoint, status string, elapsed time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.taskMetrics.Finished(endpoint, status, elapsed)
}

// RecordCatalogBuild records a lever catalog build.
func (c *Collector) RecordCatalogBuild(country string, levers int, elapsed time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.modelMetrics.RecordCatalogBuild(country, levers, elapsed)
}

// RecordDecompositionStep records one decomposition step.
func (c *Collector) RecordDecompositionStep(country string, elapsed time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.modelMetrics.RecordDecompositionStep(country, elapsed)
}

// RecordDatasetRefetch records a dataset fetched again after a failed load.
func (c *Collector) RecordDatasetRefetch(country, reason string) {
	if !c.config.Enabled {
		return
	}
	c.modelMetrics.RecordDatasetRefetch(country, reason)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter caps the number of distinct label sets recorded.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a limiter admitting maxCardinality label sets.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether labelSet is already tracked or still fits under
// the limit, tracking it in the latter case.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	_, exists := cl.current[labelSet]
	cl.mu.RUnlock()
	if exists {
		return true
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()
	if _, exists := cl.current[labelSet]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the number of tracked label sets.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
