package store

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// Prefix namespaces keys so several deployments can share an instance.
	// Default: "ledger:cache:"
	Prefix string

	// TLS enables TLS with the system roots.
	TLS bool
}

// RedisBackend stores entries as JSON strings in Redis.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend connects to Redis and verifies the connection.
func NewRedisBackend(ctx context.Context, cfg RedisConfig) (*RedisBackend, error) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, newStorageError("redis", "ping", err)
	}
	return NewRedisBackendFromClient(client, cfg.Prefix), nil
}

// NewRedisBackendFromClient wraps an existing client.
func NewRedisBackendFromClient(client *redis.Client, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "ledger:cache:"
	}
	return &RedisBackend{client: client, prefix: prefix}
}

func (r *RedisBackend) key(key string) string {
	return r.prefix + key
}

func (r *RedisBackend) CreateIfAbsent(ctx context.Context, entry *Entry) (bool, *Entry, error) {
	data, err := encode(entry)
	if err != nil {
		return false, nil, newStorageError("redis", "encode", err)
	}
	created, err := r.client.SetNX(ctx, r.key(entry.Key), data, 0).Result()
	if err != nil {
		return false, nil, newStorageError("redis", "setnx", err)
	}
	if created {
		return true, nil, nil
	}
	existing, err := r.Get(ctx, entry.Key)
	if err != nil {
		return false, nil, err
	}
	return false, existing, nil
}

func (r *RedisBackend) Put(ctx context.Context, entry *Entry) error {
	data, err := encode(entry)
	if err != nil {
		return newStorageError("redis", "encode", err)
	}
	if err := r.client.Set(ctx, r.key(entry.Key), data, 0).Err(); err != nil {
		return newStorageError("redis", "set", err)
	}
	return nil
}

func (r *RedisBackend) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, newStorageError("redis", "get", err)
	}
	e, err := decode(data)
	if err != nil {
		return nil, newStorageError("redis", "decode", err)
	}
	return e, nil
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return newStorageError("redis", "del", err)
	}
	return nil
}

// Prune scans the key prefix and deletes entries of other versions.
func (r *RedisBackend) Prune(ctx context.Context, keep string) (int, error) {
	deleted := 0
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := r.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return deleted, newStorageError("redis", "prune_get", err)
		}
		if e, err := decode(data); err == nil && e.Version == keep {
			continue
		}
		if err := r.client.Del(ctx, key).Err(); err != nil {
			return deleted, newStorageError("redis", "prune_del", err)
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, newStorageError("redis", "scan", fmt.Errorf("prefix %s: %w", r.prefix, err))
	}
	return deleted, nil
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}
