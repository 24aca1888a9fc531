package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/googleapi"
)

type factory func(t *testing.T) Backend

func backends() map[string]factory {
	return map[string]factory{
		"memory": func(t *testing.T) Backend { return NewMemoryBackend() },
		"sqlite": func(t *testing.T) Backend {
			b, err := NewSQLiteBackend(SQLiteConfig{Path: filepath.Join(t.TempDir(), "cache.db")})
			if err != nil {
				t.Fatalf("NewSQLiteBackend() error = %v", err)
			}
			return b
		},
		"badger": func(t *testing.T) Backend {
			b, err := NewBadgerBackend(BadgerConfig{InMemory: true})
			if err != nil {
				t.Fatalf("NewBadgerBackend() error = %v", err)
			}
			return b
		},
		"badger on disk": func(t *testing.T) Backend {
			b, err := NewBadgerBackend(BadgerConfig{Path: filepath.Join(t.TempDir(), "badger")})
			if err != nil {
				t.Fatalf("NewBadgerBackend() error = %v", err)
			}
			return b
		},
		"redis": func(t *testing.T) Backend {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			return NewRedisBackendFromClient(client, "test:")
		},
	}
}

func entry(key, version string, status Status) *Entry {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &Entry{
		Key:       key,
		Endpoint:  "population_reform",
		Version:   version,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestBackends(t *testing.T) {
	for name, newBackend := range backends() {
		t.Run(name, func(t *testing.T) {
			t.Run("create if absent", func(t *testing.T) {
				b := newBackend(t)
				defer b.Close()
				ctx := context.Background()

				created, existing, err := b.CreateIfAbsent(ctx, entry("k1", "1.0", StatusQueued))
				if err != nil || !created || existing != nil {
					t.Fatalf("first CreateIfAbsent() = %v, %v, %v", created, existing, err)
				}
				created, existing, err = b.CreateIfAbsent(ctx, entry("k1", "1.0", StatusInProgress))
				if err != nil || created {
					t.Fatalf("second CreateIfAbsent() = %v, %v", created, err)
				}
				if existing == nil || existing.Status != StatusQueued {
					t.Errorf("existing = %+v, want queued entry", existing)
				}
			})

			t.Run("put and get", func(t *testing.T) {
				b := newBackend(t)
				defer b.Close()
				ctx := context.Background()

				if _, err := b.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
					t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
				}

				e := entry("k2", "1.0", StatusCompleted)
				e.Result = json.RawMessage(`{"budgetary_impact":-1.5e9}`)
				if err := b.Put(ctx, e); err != nil {
					t.Fatal(err)
				}
				got, err := b.Get(ctx, "k2")
				if err != nil {
					t.Fatal(err)
				}
				if got.Status != StatusCompleted || string(got.Result) != string(e.Result) {
					t.Errorf("Get() = %+v", got)
				}
				if !got.CreatedAt.Equal(e.CreatedAt) {
					t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, e.CreatedAt)
				}

				failed := entry("k2", "1.0", StatusError)
				failed.Error = "boom"
				failed.Trace = "goroutine 1"
				if err := b.Put(ctx, failed); err != nil {
					t.Fatal(err)
				}
				got, _ = b.Get(ctx, "k2")
				if got.Status != StatusError || got.Error != "boom" || got.Trace != "goroutine 1" {
					t.Errorf("Get() after error = %+v", got)
				}
			})

			t.Run("delete", func(t *testing.T) {
				b := newBackend(t)
				defer b.Close()
				ctx := context.Background()

				if err := b.Put(ctx, entry("k3", "1.0", StatusInProgress)); err != nil {
					t.Fatal(err)
				}
				if err := b.Delete(ctx, "k3"); err != nil {
					t.Fatalf("Delete() error = %v", err)
				}
				if _, err := b.Get(ctx, "k3"); !errors.Is(err, ErrNotFound) {
					t.Errorf("Get() after Delete error = %v, want ErrNotFound", err)
				}
				if err := b.Delete(ctx, "k3"); err != nil {
					t.Errorf("Delete(missing) error = %v", err)
				}
				created, _, err := b.CreateIfAbsent(ctx, entry("k3", "1.0", StatusQueued))
				if err != nil || !created {
					t.Errorf("CreateIfAbsent() after Delete = %v, %v", created, err)
				}
			})

			t.Run("prune keeps current version", func(t *testing.T) {
				b := newBackend(t)
				defer b.Close()
				ctx := context.Background()

				for i, version := range []string{"1.0", "1.0", "0.9", "0.8"} {
					if err := b.Put(ctx, entry(fmt.Sprintf("k%d", i), version, StatusCompleted)); err != nil {
						t.Fatal(err)
					}
				}
				deleted, err := b.Prune(ctx, "1.0")
				if err != nil {
					t.Fatal(err)
				}
				if deleted != 2 {
					t.Errorf("Prune() deleted %d, want 2", deleted)
				}
				if _, err := b.Get(ctx, "k0"); err != nil {
					t.Errorf("current entry pruned: %v", err)
				}
				if _, err := b.Get(ctx, "k2"); !errors.Is(err, ErrNotFound) {
					t.Errorf("stale entry survived: %v", err)
				}
			})

			t.Run("concurrent create has one winner", func(t *testing.T) {
				b := newBackend(t)
				defer b.Close()

				var wins atomic.Int32
				var wg sync.WaitGroup
				for range 16 {
					wg.Add(1)
					go func() {
						defer wg.Done()
						created, _, err := b.CreateIfAbsent(context.Background(), entry("race", "1.0", StatusQueued))
						if err != nil {
							t.Error(err)
							return
						}
						if created {
							wins.Add(1)
						}
					}()
				}
				wg.Wait()
				if got := wins.Load(); got != 1 {
					t.Errorf("%d callers created the entry, want 1", got)
				}
			})
		})
	}
}

func TestOpen(t *testing.T) {
	b, err := Open(context.Background(), Config{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := b.(*MemoryBackend); !ok {
		t.Errorf("Open(default) = %T, want *MemoryBackend", b)
	}

	if _, err := Open(context.Background(), Config{Backend: "etcd"}); err == nil {
		t.Error("Open(etcd) should fail")
	}
	if _, err := Open(context.Background(), Config{Backend: BackendGCS}); err == nil {
		t.Error("Open(gcs) without a bucket should fail")
	}
}

func TestGCSHelpers(t *testing.T) {
	if got := objectName("cache/", "population_reform-abc-1.0"); got != "cache/population_reform-abc-1.0.json" {
		t.Errorf("objectName() = %q", got)
	}
	if !isPreconditionFailed(fmt.Errorf("write: %w", &googleapi.Error{Code: http.StatusPreconditionFailed})) {
		t.Error("412 should be a precondition failure")
	}
	if isPreconditionFailed(&googleapi.Error{Code: http.StatusForbidden}) {
		t.Error("403 is not a precondition failure")
	}
}

func TestStatusTerminal(t *testing.T) {
	tests := map[Status]bool{
		StatusQueued:     false,
		StatusInProgress: false,
		StatusCompleted:  true,
		StatusError:      true,
	}
	for status, want := range tests {
		if got := status.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, got, want)
		}
	}
}
