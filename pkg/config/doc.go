// Package config loads, validates and serves Ledger's configuration.
//
// Configuration is read from a YAML file and overridden by environment
// variables:
//
//	cfg, err := config.LoadConfigWithEnvOverrides("ledger.yaml")
//
// # Environment Variable Overrides
//
// Variables follow the convention LEDGER_SECTION_FIELD:
//
//   - LEDGER_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - LEDGER_CACHE_BACKEND overrides cache.backend
//   - LEDGER_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//   - LEDGER_COUNTRIES replaces the country list ("uk,us")
//
// # Configuration Precedence
//
//  1. Default values (defaults.go)
//  2. Values from the YAML file
//  3. Environment variable overrides
//  4. Validation, which reports every invalid field at once
//
// # Example
//
//	server:
//	  listen_address: "0.0.0.0:5000"
//	countries:
//	  - name: uk
//	    households: 5000
//	cache:
//	  backend: redis
//	  workers: 4
//	  redis:
//	    addr: "redis:6379"
//	telemetry:
//	  logging:
//	    level: debug
//	    format: text
package config
