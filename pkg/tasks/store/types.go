package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of a cache entry.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// ErrNotFound is returned by Get when no entry exists for a key.
var ErrNotFound = errors.New("cache entry not found")

// Entry is one cached computation.
type Entry struct {
	Key      string          `json:"key"`
	Endpoint string          `json:"endpoint"`
	Version  string          `json:"version"`
	Status   Status          `json:"status"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
	Trace    string          `json:"trace,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Backend persists cache entries. Implementations must be safe for
// concurrent use.
type Backend interface {
	// CreateIfAbsent stores entry unless its key exists. It reports whether
	// the entry was created; when it was not, the existing entry is returned.
	CreateIfAbsent(ctx context.Context, entry *Entry) (bool, *Entry, error)

	// Put stores entry, replacing any existing entry with the same key.
	Put(ctx context.Context, entry *Entry) error

	// Get returns the entry for key or ErrNotFound.
	Get(ctx context.Context, key string) (*Entry, error)

	// Delete removes the entry for key. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, key string) error

	// Prune deletes every entry whose version differs from keep and returns
	// the number deleted.
	Prune(ctx context.Context, keep string) (int, error)

	// Close releases the backend's resources.
	Close() error
}

// StorageError reports a backend failure.
type StorageError struct {
	Backend   string
	Operation string
	Cause     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("cache storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}

func newStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{Backend: backend, Operation: operation, Cause: cause}
}

func encode(entry *Entry) ([]byte, error) {
	return json.Marshal(entry)
}

func decode(data []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func clone(e *Entry) *Entry {
	c := *e
	if e.Result != nil {
		c.Result = append(json.RawMessage(nil), e.Result...)
	}
	return &c
}
