package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteBackend stores entries in a local SQLite database. It suits
// single-instance deployments that keep results across restarts.
type SQLiteBackend struct {
	db                 *sql.DB
	checkpointInterval time.Duration
	done               chan struct{}
	closeOnce          sync.Once

	createStmt *sql.Stmt
	putStmt    *sql.Stmt
	getStmt    *sql.Stmt
	deleteStmt *sql.Stmt
	pruneStmt  *sql.Stmt
}

// SQLiteConfig configures the SQLite backend.
type SQLiteConfig struct {
	// Path is the database file.
	Path string

	// CheckpointInterval is how often the WAL is checkpointed.
	// Default: 5 minutes
	CheckpointInterval time.Duration

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteBackend opens the database at cfg.Path, creating the schema if
// needed.
func NewSQLiteBackend(cfg SQLiteConfig) (*SQLiteBackend, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = 5 * time.Minute
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, newStorageError("sqlite", "open", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	b := &SQLiteBackend{
		db:                 db,
		checkpointInterval: cfg.CheckpointInterval,
		done:               make(chan struct{}),
	}
	if err := b.initSchema(); err != nil {
		db.Close()
		return nil, newStorageError("sqlite", "init_schema", err)
	}
	if err := b.prepareStatements(); err != nil {
		db.Close()
		return nil, newStorageError("sqlite", "prepare", err)
	}

	go b.checkpointLoop()
	return b, nil
}

func (b *SQLiteBackend) initSchema() error {
	_, err := b.db.Exec(`
	CREATE TABLE IF NOT EXISTS cache_entries (
		key TEXT PRIMARY KEY,
		endpoint TEXT NOT NULL,
		version TEXT NOT NULL,
		status TEXT NOT NULL,
		result BLOB,
		error TEXT,
		trace TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cache_entries_version ON cache_entries(version);
	`)
	return err
}

func (b *SQLiteBackend) prepareStatements() error {
	var err error

	b.createStmt, err = b.db.Prepare(`
		INSERT INTO cache_entries (key, endpoint, version, status, result, error, trace, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (key) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare create statement: %w", err)
	}

	b.putStmt, err = b.db.Prepare(`
		INSERT INTO cache_entries (key, endpoint, version, status, result, error, trace, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			endpoint = excluded.endpoint,
			version = excluded.version,
			status = excluded.status,
			result = excluded.result,
			error = excluded.error,
			trace = excluded.trace,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare put statement: %w", err)
	}

	b.getStmt, err = b.db.Prepare(`
		SELECT key, endpoint, version, status, result, error, trace, created_at, updated_at
		FROM cache_entries WHERE key = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare get statement: %w", err)
	}

	b.deleteStmt, err = b.db.Prepare(`DELETE FROM cache_entries WHERE key = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}

	b.pruneStmt, err = b.db.Prepare(`DELETE FROM cache_entries WHERE version != ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare prune statement: %w", err)
	}
	return nil
}

func entryArgs(e *Entry) []any {
	return []any{
		e.Key, e.Endpoint, e.Version, string(e.Status), []byte(e.Result), e.Error, e.Trace,
		e.CreatedAt.UnixNano(), e.UpdatedAt.UnixNano(),
	}
}

func (b *SQLiteBackend) CreateIfAbsent(ctx context.Context, entry *Entry) (bool, *Entry, error) {
	res, err := b.createStmt.ExecContext(ctx, entryArgs(entry)...)
	if err != nil {
		return false, nil, newStorageError("sqlite", "create", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, nil, newStorageError("sqlite", "create", err)
	}
	if n == 1 {
		return true, nil, nil
	}
	existing, err := b.Get(ctx, entry.Key)
	if err != nil {
		return false, nil, err
	}
	return false, existing, nil
}

func (b *SQLiteBackend) Put(ctx context.Context, entry *Entry) error {
	if _, err := b.putStmt.ExecContext(ctx, entryArgs(entry)...); err != nil {
		return newStorageError("sqlite", "put", err)
	}
	return nil
}

func (b *SQLiteBackend) Get(ctx context.Context, key string) (*Entry, error) {
	var e Entry
	var status string
	var result []byte
	var errText, trace sql.NullString
	var created, updated int64

	err := b.getStmt.QueryRowContext(ctx, key).Scan(
		&e.Key, &e.Endpoint, &e.Version, &status, &result, &errText, &trace, &created, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, newStorageError("sqlite", "get", err)
	}

	e.Status = Status(status)
	if len(result) > 0 {
		e.Result = result
	}
	e.Error = errText.String
	e.Trace = trace.String
	e.CreatedAt = time.Unix(0, created).UTC()
	e.UpdatedAt = time.Unix(0, updated).UTC()
	return &e, nil
}

func (b *SQLiteBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.deleteStmt.ExecContext(ctx, key); err != nil {
		return newStorageError("sqlite", "delete", err)
	}
	return nil
}

func (b *SQLiteBackend) Prune(ctx context.Context, keep string) (int, error) {
	res, err := b.pruneStmt.ExecContext(ctx, keep)
	if err != nil {
		return 0, newStorageError("sqlite", "prune", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, newStorageError("sqlite", "prune", err)
	}
	return int(n), nil
}

// Close is idempotent.
func (b *SQLiteBackend) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		close(b.done)
		for _, stmt := range []*sql.Stmt{b.createStmt, b.putStmt, b.getStmt, b.deleteStmt, b.pruneStmt} {
			if stmt != nil {
				stmt.Close()
			}
		}
		_, _ = b.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		closeErr = b.db.Close()
	})
	return closeErr
}

func (b *SQLiteBackend) checkpointLoop() {
	ticker := time.NewTicker(b.checkpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = b.db.Exec("PRAGMA wal_checkpoint(PASSIVE)")
		case <-b.done:
			return
		}
	}
}
