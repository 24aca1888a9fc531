package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LEDGER_"

// LoadConfig loads configuration from a YAML file, applies defaults and
// validates it. Environment variables are not consulted; use
// LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default and applies defaults to whatever the
// document left empty. Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration and applies environment
// variable overrides named LEDGER_SECTION_FIELD (e.g.
// LEDGER_SERVER_LISTEN_ADDRESS). Environment variables take precedence over
// the file. An empty path starts from the defaults alone.
//
// The loading sequence is:
//  1. Load YAML from file
//  2. Apply default values
//  3. Apply environment variable overrides
//  4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if cfg, err = Parse(data); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}
	return cfg, nil
}

// envOverride binds one environment variable to a configuration field.
type envOverride struct {
	name string
	set  func(cfg *Config, val string) error
}

func stringVar(field func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		*field(cfg) = val
		return nil
	}
}

func boolVar(field func(*Config) *bool) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return err
		}
		*field(cfg) = b
		return nil
	}
}

func intVar(field func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		i, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		*field(cfg) = i
		return nil
	}
}

func floatVar(field func(*Config) *float64) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return err
		}
		*field(cfg) = f
		return nil
	}
}

func durationVar(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		d, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		*field(cfg) = d
		return nil
	}
}

var envOverrides = []envOverride{
	// Server
	{"SERVER_LISTEN_ADDRESS", stringVar(func(c *Config) *string { return &c.Server.ListenAddress })},
	{"SERVER_READ_TIMEOUT", durationVar(func(c *Config) *time.Duration { return &c.Server.ReadTimeout })},
	{"SERVER_WRITE_TIMEOUT", durationVar(func(c *Config) *time.Duration { return &c.Server.WriteTimeout })},
	{"SERVER_IDLE_TIMEOUT", durationVar(func(c *Config) *time.Duration { return &c.Server.IdleTimeout })},
	{"SERVER_SHUTDOWN_TIMEOUT", durationVar(func(c *Config) *time.Duration { return &c.Server.ShutdownTimeout })},
	{"SERVER_MAX_HEADER_BYTES", intVar(func(c *Config) *int { return &c.Server.MaxHeaderBytes })},
	{"SERVER_CORS_ENABLED", boolVar(func(c *Config) *bool { return &c.Server.CORS.Enabled })},

	// Dataset
	{"DATASET_PATH", stringVar(func(c *Config) *string { return &c.Dataset.Path })},

	// Cache
	{"CACHE_ENABLED", boolVar(func(c *Config) *bool { return &c.Cache.Enabled })},
	{"CACHE_BACKEND", stringVar(func(c *Config) *string { return &c.Cache.Backend })},
	{"CACHE_VERSION", stringVar(func(c *Config) *string { return &c.Cache.Version })},
	{"CACHE_WORKERS", intVar(func(c *Config) *int { return &c.Cache.Workers })},
	{"CACHE_PRUNE_SCHEDULE", stringVar(func(c *Config) *string { return &c.Cache.PruneSchedule })},
	{"CACHE_SQLITE_PATH", stringVar(func(c *Config) *string { return &c.Cache.SQLite.Path })},
	{"CACHE_BADGER_PATH", stringVar(func(c *Config) *string { return &c.Cache.Badger.Path })},
	{"CACHE_REDIS_ADDR", stringVar(func(c *Config) *string { return &c.Cache.Redis.Addr })},
	{"CACHE_REDIS_PASSWORD", stringVar(func(c *Config) *string { return &c.Cache.Redis.Password })},
	{"CACHE_REDIS_DB", intVar(func(c *Config) *int { return &c.Cache.Redis.DB })},
	{"CACHE_GCS_BUCKET", stringVar(func(c *Config) *string { return &c.Cache.GCS.Bucket })},
	{"CACHE_GCS_PREFIX", stringVar(func(c *Config) *string { return &c.Cache.GCS.Prefix })},
	{"CACHE_GCS_CREDENTIALS_FILE", stringVar(func(c *Config) *string { return &c.Cache.GCS.CredentialsFile })},

	// Decomposition
	{"DECOMPOSITION_PARALLELISM", intVar(func(c *Config) *int { return &c.Decomposition.Parallelism })},

	// Telemetry
	{"TELEMETRY_LOGGING_LEVEL", stringVar(func(c *Config) *string { return &c.Telemetry.Logging.Level })},
	{"TELEMETRY_LOGGING_FORMAT", stringVar(func(c *Config) *string { return &c.Telemetry.Logging.Format })},
	{"TELEMETRY_METRICS_ENABLED", boolVar(func(c *Config) *bool { return &c.Telemetry.Metrics.Enabled })},
	{"TELEMETRY_METRICS_PATH", stringVar(func(c *Config) *string { return &c.Telemetry.Metrics.Path })},
	{"TELEMETRY_TRACING_ENABLED", boolVar(func(c *Config) *bool { return &c.Telemetry.Tracing.Enabled })},
	{"TELEMETRY_TRACING_ENDPOINT", stringVar(func(c *Config) *string { return &c.Telemetry.Tracing.Endpoint })},
	{"TELEMETRY_TRACING_SAMPLE_RATIO", floatVar(func(c *Config) *float64 { return &c.Telemetry.Tracing.SampleRatio })},
}

// applyEnvOverrides applies LEDGER_* variables. LEDGER_COUNTRIES replaces
// the country list with the comma-separated names it holds, keeping the
// settings of countries already configured.
func applyEnvOverrides(cfg *Config) error {
	var errs []FieldError
	for _, o := range envOverrides {
		val := os.Getenv(EnvPrefix + o.name)
		if val == "" {
			continue
		}
		if err := o.set(cfg, val); err != nil {
			errs = append(errs, FieldError{
				Field:   EnvPrefix + o.name,
				Message: fmt.Sprintf("invalid value %q: %v", val, err),
			})
		}
	}

	if val := os.Getenv(EnvPrefix + "COUNTRIES"); val != "" {
		existing := make(map[string]CountryConfig, len(cfg.Countries))
		for _, c := range cfg.Countries {
			existing[c.Name] = c
		}
		var countries []CountryConfig
		for _, name := range strings.Split(val, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			c, ok := existing[name]
			if !ok {
				c = CountryConfig{Name: name}
			}
			countries = append(countries, c)
		}
		cfg.Countries = countries
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}
