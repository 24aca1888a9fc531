package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
)

const badgerPrefix = "entry/"

// BadgerConfig configures the Badger backend.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps the database off disk.
	InMemory bool

	// SyncWrites makes every write durable before it returns.
	SyncWrites bool

	// Logger receives Badger's internal logs. Nil disables them.
	Logger *slog.Logger
}

// BadgerBackend stores entries in an embedded Badger database.
type BadgerBackend struct {
	db *badger.DB
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// NewBadgerBackend opens the database described by cfg.
func NewBadgerBackend(cfg BadgerConfig) (*BadgerBackend, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, newStorageError("badger", "mkdir", err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, newStorageError("badger", "open", err)
	}
	return &BadgerBackend{db: db}, nil
}

func badgerKey(key string) []byte {
	return []byte(badgerPrefix + key)
}

// CreateIfAbsent runs a read-then-write transaction. Badger's optimistic
// concurrency control rejects the loser of a race with ErrConflict, which is
// retried as a read.
func (b *BadgerBackend) CreateIfAbsent(ctx context.Context, entry *Entry) (bool, *Entry, error) {
	data, err := encode(entry)
	if err != nil {
		return false, nil, newStorageError("badger", "encode", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return false, nil, err
		}
		var existing *Entry
		err := b.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(badgerKey(entry.Key))
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
				return txn.Set(badgerKey(entry.Key), data)
			case err != nil:
				return err
			}
			return item.Value(func(val []byte) error {
				existing, err = decode(val)
				return err
			})
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			return false, nil, newStorageError("badger", "create", err)
		}
		return existing == nil, existing, nil
	}
}

func (b *BadgerBackend) Put(_ context.Context, entry *Entry) error {
	data, err := encode(entry)
	if err != nil {
		return newStorageError("badger", "encode", err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(entry.Key), data)
	})
	if err != nil {
		return newStorageError("badger", "put", err)
	}
	return nil
}

func (b *BadgerBackend) Get(_ context.Context, key string) (*Entry, error) {
	var entry *Entry
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			entry, err = decode(val)
			return err
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, newStorageError("badger", "get", err)
	}
	return entry, nil
}

func (b *BadgerBackend) Delete(_ context.Context, key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(badgerKey(key))
	})
	if err != nil {
		return newStorageError("badger", "delete", err)
	}
	return nil
}

func (b *BadgerBackend) Prune(_ context.Context, keep string) (int, error) {
	var stale [][]byte
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(badgerPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				e, err := decode(val)
				if err != nil || e.Version != keep {
					stale = append(stale, item.KeyCopy(nil))
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, newStorageError("badger", "prune_scan", err)
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range stale {
		if err := wb.Delete(key); err != nil {
			return 0, newStorageError("badger", "prune", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, newStorageError("badger", "prune", err)
	}
	return len(stale), nil
}

func (b *BadgerBackend) Close() error {
	return b.db.Close()
}
