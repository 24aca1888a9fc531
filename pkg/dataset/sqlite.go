package dataset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"taxlab-hq/ledger/pkg/engine"
)

// SQLiteConfig contains configuration for the SQLite dataset store.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "data/datasets.db"
	Path string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 4
	MaxOpenConns int

	// WALMode enables Write-Ahead Logging.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/datasets.db",
		MaxOpenConns: 4,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// Store persists datasets by year.
type Store interface {
	Save(ctx context.Context, data *engine.Data) error
	Load(ctx context.Context, year int) (*engine.Data, error)
	Delete(ctx context.Context, year int) error
	Close() error
}

// SQLiteStore is a Store backed by SQLite.
type SQLiteStore struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStore opens (creating if needed) the dataset database.
func NewSQLiteStore(config *SQLiteConfig) (*SQLiteStore, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.MaxOpenConns <= 0 {
		config.MaxOpenConns = 4
	}
	if config.BusyTimeout <= 0 {
		config.BusyTimeout = 5 * time.Second
	}

	logger := slog.Default().With("component", "dataset.sqlite")

	db, err := sql.Open("sqlite3", config.Path+"?_foreign_keys=on")
	if err != nil {
		return nil, newStorageError("open", 0, err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)

	s := &SQLiteStore{db: db, config: config, logger: logger}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("dataset store initialized", "path", config.Path, "wal_mode", config.WALMode)
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return newStorageError("enable_wal", 0, err)
		}
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return newStorageError("set_busy_timeout", 0, err)
	}
	if _, err := s.db.Exec(schema); err != nil {
		return newStorageError("create_schema", 0, err)
	}
	if _, err := s.db.Exec(insertSchemaVersion, SchemaVersion); err != nil {
		return newStorageError("insert_schema_version", 0, err)
	}

	var version int
	if err := s.db.QueryRow(getSchemaVersion).Scan(&version); err != nil {
		return newStorageError("get_schema_version", 0, err)
	}
	if version != SchemaVersion {
		return newStorageError("schema_version_mismatch", 0,
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}
	return nil
}

// Save replaces the stored dataset for data.Year.
func (s *SQLiteStore) Save(ctx context.Context, data *engine.Data) error {
	names, arrays := encode(data)
	sum := checksum(data.Year, data.Households, names, arrays)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return newStorageError("begin", data.Year, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM arrays WHERE year = ?`, data.Year); err != nil {
		return newStorageError("save", data.Year, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO datasets (year, households, people, checksum, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(year) DO UPDATE SET
			households = excluded.households,
			people = excluded.people,
			checksum = excluded.checksum,
			created_at = excluded.created_at`,
		data.Year, data.Households, data.People(), sum, time.Now().UTC())
	if err != nil {
		return newStorageError("save", data.Year, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO arrays (year, name, data) VALUES (?, ?, ?)`)
	if err != nil {
		return newStorageError("prepare", data.Year, err)
	}
	defer stmt.Close()
	for i, name := range names {
		if _, err := stmt.ExecContext(ctx, data.Year, name, arrays[i]); err != nil {
			return newStorageError("save_array", data.Year, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return newStorageError("commit", data.Year, err)
	}
	s.logger.Debug("dataset saved", "year", data.Year, "arrays", len(names), "checksum", sum)
	return nil
}

// Load reads the dataset for year, verifying its checksum.
func (s *SQLiteStore) Load(ctx context.Context, year int) (*engine.Data, error) {
	var households, people int
	var sum string
	err := s.db.QueryRowContext(ctx,
		`SELECT households, people, checksum FROM datasets WHERE year = ?`, year,
	).Scan(&households, &people, &sum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, newStorageError("load", year, err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT name, data FROM arrays WHERE year = ?`, year)
	if err != nil {
		return nil, newStorageError("load_arrays", year, err)
	}
	defer rows.Close()

	data := &engine.Data{Year: year, Households: households, Inputs: map[string][]float64{}}
	for rows.Next() {
		var name string
		var buf []byte
		if err := rows.Scan(&name, &buf); err != nil {
			return nil, newStorageError("scan", year, err)
		}
		if name == MembershipArray {
			if data.PersonHousehold, err = decodeMembership(buf); err != nil {
				return nil, err
			}
			continue
		}
		if data.Inputs[name], err = decodeFloats(buf); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, newStorageError("load_arrays", year, err)
	}

	if len(data.PersonHousehold) != people {
		return nil, fmt.Errorf("%w: %d people recorded, %d in membership array", ErrCorrupt, people, len(data.PersonHousehold))
	}
	if got := Checksum(data); got != sum {
		return nil, fmt.Errorf("%w: checksum %s, want %s", ErrCorrupt, got, sum)
	}
	return data, nil
}

// Delete removes the dataset for year.
func (s *SQLiteStore) Delete(ctx context.Context, year int) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM datasets WHERE year = ?`, year); err != nil {
		return newStorageError("delete", year, err)
	}
	return nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
