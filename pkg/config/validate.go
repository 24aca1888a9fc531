package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every field error found in a configuration.
type ValidationError struct {
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate checks the whole configuration and returns a ValidationError
// holding every failed rule, or nil.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateCountries(cfg.Countries)...)
	errs = append(errs, validateDataset(&cfg.Dataset)...)
	errs = append(errs, validateCache(&cfg.Cache)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if cfg.Decomposition.Parallelism < 1 {
		errs = append(errs, FieldError{
			Field:   "decomposition.parallelism",
			Message: "parallelism must be at least 1",
		})
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{Field: "server.listen_address", Message: "listen address is required"})
	} else if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("invalid listen address %q: %v", cfg.ListenAddress, err),
		})
	}

	timeouts := []struct {
		field string
		value time.Duration
	}{
		{"server.read_timeout", cfg.ReadTimeout},
		{"server.write_timeout", cfg.WriteTimeout},
		{"server.idle_timeout", cfg.IdleTimeout},
		{"server.shutdown_timeout", cfg.ShutdownTimeout},
	}
	for _, t := range timeouts {
		if t.value < 0 {
			errs = append(errs, FieldError{Field: t.field, Message: "timeout must not be negative"})
		}
	}

	if cfg.MaxHeaderBytes < 0 || cfg.MaxHeaderBytes > 10*1024*1024 {
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes must be between 0 and 10MB",
		})
	}
	if cfg.MaxBodyBytes < 0 {
		errs = append(errs, FieldError{Field: "server.max_body_bytes", Message: "max body bytes must not be negative"})
	}
	if cfg.CORS.MaxAge < 0 {
		errs = append(errs, FieldError{Field: "server.cors.max_age", Message: "max age must not be negative"})
	}
	return errs
}

func validateCountries(countries []CountryConfig) []FieldError {
	var errs []FieldError
	if len(countries) == 0 {
		return []FieldError{{Field: "countries", Message: "at least one country is required"}}
	}

	seen := make(map[string]bool, len(countries))
	for i, c := range countries {
		prefix := fmt.Sprintf("countries[%d]", i)
		switch {
		case c.Name == "":
			errs = append(errs, FieldError{Field: prefix + ".name", Message: "country name is required"})
		case seen[c.Name]:
			errs = append(errs, FieldError{Field: prefix + ".name", Message: fmt.Sprintf("country %q configured twice", c.Name)})
		}
		seen[c.Name] = true

		if c.Households < 0 {
			errs = append(errs, FieldError{Field: prefix + ".households", Message: "households must not be negative"})
		}
		if c.DatasetYear < 0 {
			errs = append(errs, FieldError{Field: prefix + ".dataset_year", Message: "dataset year must not be negative"})
		}
		if c.Watch && c.ParametersDir == "" {
			errs = append(errs, FieldError{Field: prefix + ".watch", Message: "watch requires parameters_dir"})
		}
	}
	return errs
}

func validateDataset(cfg *DatasetConfig) []FieldError {
	var errs []FieldError
	if cfg.Path == "" {
		errs = append(errs, FieldError{Field: "dataset.path", Message: "dataset path is required"})
	}
	if cfg.MaxOpenConns < 1 {
		errs = append(errs, FieldError{Field: "dataset.max_open_conns", Message: "max open connections must be at least 1"})
	}
	return errs
}

var cacheBackends = []string{"memory", "sqlite", "badger", "redis", "gcs"}

func validateCache(cfg *CacheConfig) []FieldError {
	var errs []FieldError

	known := false
	for _, b := range cacheBackends {
		known = known || cfg.Backend == b
	}
	if !known {
		errs = append(errs, FieldError{
			Field:   "cache.backend",
			Message: fmt.Sprintf("invalid backend %q: must be one of %s", cfg.Backend, strings.Join(cacheBackends, ", ")),
		})
	}

	if cfg.Workers < 1 {
		errs = append(errs, FieldError{Field: "cache.workers", Message: "workers must be at least 1"})
	}

	if cfg.PruneSchedule != "" {
		if _, err := cron.ParseStandard(cfg.PruneSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "cache.prune_schedule",
				Message: fmt.Sprintf("invalid cron expression %q: %v", cfg.PruneSchedule, err),
			})
		}
	}

	switch cfg.Backend {
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "cache.sqlite.path", Message: "path is required for the sqlite backend"})
		}
	case "badger":
		if cfg.Badger.Path == "" && !cfg.Badger.InMemory {
			errs = append(errs, FieldError{Field: "cache.badger.path", Message: "path is required unless in_memory is set"})
		}
	case "redis":
		if cfg.Redis.Addr == "" {
			errs = append(errs, FieldError{Field: "cache.redis.addr", Message: "address is required for the redis backend"})
		}
	case "gcs":
		if cfg.GCS.Bucket == "" {
			errs = append(errs, FieldError{Field: "cache.gcs.bucket", Message: "bucket is required for the gcs backend"})
		}
	}
	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json' or 'text'", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with '/'",
		})
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "tracing endpoint is required when tracing is enabled",
		})
	}
	switch cfg.Tracing.Sampler {
	case "always", "never", "ratio":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sampler",
			Message: fmt.Sprintf("invalid sampler %q: must be 'always', 'never', or 'ratio'", cfg.Tracing.Sampler),
		})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1.0 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}
	return errs
}
