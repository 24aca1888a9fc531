package config

import "time"

// Config is the root configuration structure for Ledger.
type Config struct {
	// Server contains HTTP server configuration.
	Server ServerConfig `yaml:"server"`

	// Countries lists the country models served. Each is mounted under
	// /<name>/api/.
	Countries []CountryConfig `yaml:"countries"`

	// Dataset configures the on-disk store of microdata.
	Dataset DatasetConfig `yaml:"dataset"`

	// Cache configures memoisation of expensive endpoints.
	Cache CacheConfig `yaml:"cache"`

	// Decomposition configures per-provision impact attribution.
	Decomposition DecompositionConfig `yaml:"decomposition"`

	// Telemetry contains logging, metrics and tracing configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Default: "127.0.0.1:5000"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. Household calculations run inside the request, so this
	// bounds them too.
	// Default: 120s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown, including waiting for
	// running cache workers.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits request header size.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// MaxBodyBytes limits request body size.
	// Default: 1048576 (1MB)
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// CORS contains Cross-Origin Resource Sharing configuration.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig contains CORS configuration.
type CORSConfig struct {
	// Enabled controls whether CORS headers are sent.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins lists allowed origins. ["*"] allows all.
	// Default: ["*"]
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods lists allowed methods.
	// Default: ["GET", "POST", "OPTIONS"]
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders lists allowed request headers.
	// Default: ["Content-Type", "X-Request-ID"]
	AllowedHeaders []string `yaml:"allowed_headers"`

	// MaxAge is the preflight cache lifetime in seconds.
	// Default: 3600
	MaxAge int `yaml:"max_age"`
}

// CountryConfig configures one country model.
type CountryConfig struct {
	// Name selects the country implementation (e.g. "uk").
	Name string `yaml:"name"`

	// DatasetYear is the year of microdata population endpoints simulate.
	// Default: the country's own default.
	DatasetYear int `yaml:"dataset_year"`

	// Households is the size of the synthetic population.
	// Default: the country's own default.
	Households int `yaml:"households"`

	// Seed seeds synthetic population generation.
	Seed uint64 `yaml:"seed"`

	// ParametersDir, if set, reads the parameter tree from this directory
	// instead of the embedded one.
	ParametersDir string `yaml:"parameters_dir"`

	// Watch rebuilds the lever catalog when files in ParametersDir change.
	// Default: false
	Watch bool `yaml:"watch"`
}

// DatasetConfig configures the microdata store.
type DatasetConfig struct {
	// Path is the SQLite database file.
	// Default: "data/datasets.db"
	Path string `yaml:"path"`

	// MaxOpenConns bounds open connections.
	// Default: 4
	MaxOpenConns int `yaml:"max_open_conns"`

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is how long to wait for a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// CacheConfig configures the cache and async task runner.
type CacheConfig struct {
	// Enabled routes cached endpoints through the task runner. When false
	// they are computed inline on every request.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Backend selects the entry store.
	// Options: "memory", "sqlite", "badger", "redis", "gcs"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// Version is appended to every cache key. Defaults to the build version,
	// so a new release never serves results computed by an old one.
	Version string `yaml:"version"`

	// Workers bounds concurrently running computations.
	// Default: 2
	Workers int `yaml:"workers"`

	// PruneSchedule is a cron expression for deleting entries of other
	// versions. Empty disables pruning.
	// Default: "0 4 * * *"
	PruneSchedule string `yaml:"prune_schedule"`

	SQLite CacheSQLiteConfig `yaml:"sqlite"`
	Badger CacheBadgerConfig `yaml:"badger"`
	Redis  CacheRedisConfig  `yaml:"redis"`
	GCS    CacheGCSConfig    `yaml:"gcs"`
}

// CacheSQLiteConfig configures the SQLite cache backend.
type CacheSQLiteConfig struct {
	// Default: "data/cache.db"
	Path string `yaml:"path"`

	// CheckpointInterval is the WAL checkpoint interval.
	// Default: 5m
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`

	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// CacheBadgerConfig configures the Badger cache backend.
type CacheBadgerConfig struct {
	// Default: "data/cache.badger"
	Path string `yaml:"path"`

	InMemory   bool `yaml:"in_memory"`
	SyncWrites bool `yaml:"sync_writes"`
}

// CacheRedisConfig configures the Redis cache backend.
type CacheRedisConfig struct {
	// Default: "localhost:6379"
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// Prefix namespaces keys.
	// Default: "ledger:cache:"
	Prefix string `yaml:"prefix"`

	TLS bool `yaml:"tls"`
}

// CacheGCSConfig configures the Cloud Storage cache backend.
type CacheGCSConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`

	// CredentialsFile is a service account key. Empty uses application
	// default credentials.
	CredentialsFile string `yaml:"credentials_file"`

	// Endpoint overrides the API endpoint, for emulators.
	Endpoint string `yaml:"endpoint"`
}

// DecompositionConfig configures provision decomposition.
type DecompositionConfig struct {
	// Parallelism bounds the intermediate simulations built at once.
	// Default: 1
	Parallelism int `yaml:"parallelism"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum level emitted.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line in entries.
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains metrics configuration.
type MetricsConfig struct {
	// Enabled controls metrics collection.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path of the Prometheus endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Default: "ledger"
	Namespace string `yaml:"namespace"`

	// Default: "api"
	Subsystem string `yaml:"subsystem"`

	// RequestDurationBuckets are histogram buckets for request latency in
	// seconds.
	// Default: [0.005, 0.025, 0.1, 0.5, 1, 2.5, 10]
	RequestDurationBuckets []float64 `yaml:"request_duration_buckets"`

	// TaskDurationBuckets are histogram buckets for cached computations in
	// seconds.
	// Default: [0.5, 1, 5, 15, 30, 60, 120, 300]
	TaskDurationBuckets []float64 `yaml:"task_duration_buckets"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls tracing. Disabled tracing installs a no-op tracer.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler is the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces kept when Sampler is "ratio".
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector address.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is reported on every span.
	// Default: "ledger"
	ServiceName string `yaml:"service_name"`

	// Insecure disables TLS to the collector.
	Insecure bool `yaml:"insecure"`

	// Timeout bounds each export.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}
