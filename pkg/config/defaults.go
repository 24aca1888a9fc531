package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:5000"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 120 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB
	DefaultMaxBodyBytes    = 1048576 // 1MB

	// CORS defaults
	DefaultCORSEnabled = true
	DefaultCORSMaxAge  = 3600

	// Country defaults
	DefaultCountry = "uk"

	// Dataset defaults
	DefaultDatasetPath         = "data/datasets.db"
	DefaultDatasetMaxOpenConns = 4
	DefaultDatasetWALMode      = true
	DefaultDatasetBusyTimeout  = 5 * time.Second

	// Cache defaults
	DefaultCacheEnabled            = true
	DefaultCacheBackend            = "sqlite"
	DefaultCacheWorkers            = 2
	DefaultCachePruneSchedule      = "0 4 * * *"
	DefaultCacheSQLitePath         = "data/cache.db"
	DefaultCacheCheckpointInterval = 5 * time.Minute
	DefaultCacheBusyTimeout        = 5 * time.Second
	DefaultCacheBadgerPath         = "data/cache.badger"
	DefaultCacheRedisAddr          = "localhost:6379"
	DefaultCacheRedisPrefix        = "ledger:cache:"

	// Decomposition defaults
	DefaultDecompositionParallelism = 1

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultMetricsEnabled     = true
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "ledger"
	DefaultMetricsSubsystem   = "api"
	DefaultTracingEnabled     = false
	DefaultTracingSampler     = "ratio"
	DefaultTracingSampleRatio = 0.1
	DefaultTracingEndpoint    = "localhost:4317"
	DefaultTracingServiceName = "ledger"
	DefaultTracingTimeout     = 10 * time.Second
)

// DefaultRequestDurationBuckets spans quick metadata lookups to household
// calculations.
var DefaultRequestDurationBuckets = []float64{0.005, 0.025, 0.1, 0.5, 1, 2.5, 10}

// DefaultTaskDurationBuckets spans population simulations and decompositions.
var DefaultTaskDurationBuckets = []float64{0.5, 1, 5, 15, 30, 60, 120, 300}

// Default returns a configuration with every default applied, including
// boolean fields whose default is true. Files are decoded on top of it, so
// a boolean left out of a file keeps its default.
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{
			CORS: CORSConfig{Enabled: DefaultCORSEnabled},
		},
		Dataset: DatasetConfig{WALMode: DefaultDatasetWALMode},
		Cache: CacheConfig{
			Enabled:       DefaultCacheEnabled,
			PruneSchedule: DefaultCachePruneSchedule,
		},
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Enabled: DefaultMetricsEnabled},
			Tracing: TracingConfig{Enabled: DefaultTracingEnabled},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets defaults for fields holding their zero value. It is
// idempotent. Booleans are left alone; see Default.
func ApplyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)

	if len(cfg.Countries) == 0 {
		cfg.Countries = []CountryConfig{{Name: DefaultCountry}}
	}

	if cfg.Dataset.Path == "" {
		cfg.Dataset.Path = DefaultDatasetPath
	}
	if cfg.Dataset.MaxOpenConns == 0 {
		cfg.Dataset.MaxOpenConns = DefaultDatasetMaxOpenConns
	}
	if cfg.Dataset.BusyTimeout == 0 {
		cfg.Dataset.BusyTimeout = DefaultDatasetBusyTimeout
	}

	applyCacheDefaults(&cfg.Cache)

	if cfg.Decomposition.Parallelism == 0 {
		cfg.Decomposition.Parallelism = DefaultDecompositionParallelism
	}

	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyServerDefaults(s *ServerConfig) {
	if s.ListenAddress == "" {
		s.ListenAddress = DefaultListenAddress
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.IdleTimeout == 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}
	if s.MaxHeaderBytes == 0 {
		s.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if s.MaxBodyBytes == 0 {
		s.MaxBodyBytes = DefaultMaxBodyBytes
	}

	if len(s.CORS.AllowedOrigins) == 0 {
		s.CORS.AllowedOrigins = []string{"*"}
	}
	if len(s.CORS.AllowedMethods) == 0 {
		s.CORS.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(s.CORS.AllowedHeaders) == 0 {
		s.CORS.AllowedHeaders = []string{"Content-Type", "X-Request-ID"}
	}
	if s.CORS.MaxAge == 0 {
		s.CORS.MaxAge = DefaultCORSMaxAge
	}
}

func applyCacheDefaults(c *CacheConfig) {
	if c.Backend == "" {
		c.Backend = DefaultCacheBackend
	}
	if c.Workers == 0 {
		c.Workers = DefaultCacheWorkers
	}
	if c.SQLite.Path == "" {
		c.SQLite.Path = DefaultCacheSQLitePath
	}
	if c.SQLite.CheckpointInterval == 0 {
		c.SQLite.CheckpointInterval = DefaultCacheCheckpointInterval
	}
	if c.SQLite.BusyTimeout == 0 {
		c.SQLite.BusyTimeout = DefaultCacheBusyTimeout
	}
	if c.Badger.Path == "" && !c.Badger.InMemory {
		c.Badger.Path = DefaultCacheBadgerPath
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = DefaultCacheRedisAddr
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = DefaultCacheRedisPrefix
	}
}

func applyTelemetryDefaults(t *TelemetryConfig) {
	if t.Logging.Level == "" {
		t.Logging.Level = DefaultLoggingLevel
	}
	if t.Logging.Format == "" {
		t.Logging.Format = DefaultLoggingFormat
	}

	if t.Metrics.Path == "" {
		t.Metrics.Path = DefaultMetricsPath
	}
	if t.Metrics.Namespace == "" {
		t.Metrics.Namespace = DefaultMetricsNamespace
	}
	if t.Metrics.Subsystem == "" {
		t.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if len(t.Metrics.RequestDurationBuckets) == 0 {
		t.Metrics.RequestDurationBuckets = append([]float64(nil), DefaultRequestDurationBuckets...)
	}
	if len(t.Metrics.TaskDurationBuckets) == 0 {
		t.Metrics.TaskDurationBuckets = append([]float64(nil), DefaultTaskDurationBuckets...)
	}

	if t.Tracing.Sampler == "" {
		t.Tracing.Sampler = DefaultTracingSampler
	}
	if t.Tracing.SampleRatio == 0 {
		t.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if t.Tracing.Endpoint == "" {
		t.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if t.Tracing.ServiceName == "" {
		t.Tracing.ServiceName = DefaultTracingServiceName
	}
	if t.Tracing.Timeout == 0 {
		t.Tracing.Timeout = DefaultTracingTimeout
	}
}
