package store

import (
	"context"
	"fmt"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendRedis  = "redis"
	BackendGCS    = "gcs"
)

// Config selects and configures a backend.
type Config struct {
	Backend string
	SQLite  SQLiteConfig
	Badger  BadgerConfig
	Redis   RedisConfig
	GCS     GCSConfig
}

// Open creates the backend named by cfg.Backend.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryBackend(), nil
	case BackendSQLite:
		return NewSQLiteBackend(cfg.SQLite)
	case BackendBadger:
		return NewBadgerBackend(cfg.Badger)
	case BackendRedis:
		return NewRedisBackend(ctx, cfg.Redis)
	case BackendGCS:
		return NewGCSBackend(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unsupported cache backend %q (supported: memory, sqlite, badger, redis, gcs)", cfg.Backend)
	}
}
