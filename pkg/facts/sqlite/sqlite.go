// Package sqlite provides the durable, file-backed facts.Store using
// github.com/mattn/go-sqlite3.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/lokal/pkg/facts"
	"github.com/papercomputeco/lokal/pkg/facts/sqlstore"
	"github.com/papercomputeco/lokal/pkg/logger"
)

// MemoryPath opens a private, non-persisted database.
const MemoryPath = ":memory:"

const defaultBusyTimeout = 5 * time.Second

var dialect = sqlstore.Dialect{
	Name: "sqlite",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS facts (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL CHECK (content <> ''),
			norm_key TEXT NOT NULL UNIQUE,
			category TEXT NOT NULL DEFAULT 'other',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS facts_updated_at_idx ON facts (updated_at)`,
		`CREATE TABLE IF NOT EXISTS fact_terms (
			term TEXT NOT NULL,
			fact_id TEXT NOT NULL REFERENCES facts (id) ON DELETE CASCADE,
			PRIMARY KEY (term, fact_id)
		) WITHOUT ROWID`,
		`CREATE INDEX IF NOT EXISTS fact_terms_fact_id_idx ON fact_terms (fact_id)`,
	},
}

// Config configures the SQLite store.
type Config struct {
	// Path is the database file, or MemoryPath for an ephemeral database.
	Path string

	// BusyTimeout bounds how long a connection waits on a locked database.
	BusyTimeout time.Duration

	Logger *slog.Logger
}

// Store is the SQLite-backed facts.Store.
type Store struct {
	*sqlstore.Store

	// Backup is the path a corrupt database was moved to during open, if any.
	Backup string
}

// NewStore opens (creating if needed) the database at c.Path. A file that is
// not a readable SQLite database is moved aside to "<path>.<unix>.bak" and
// replaced with a fresh one.
func NewStore(ctx context.Context, c Config, opts ...facts.Option) (*Store, error) {
	if c.Path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = defaultBusyTimeout
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	inner, err := open(ctx, c, opts)
	if err == nil {
		return &Store{Store: inner}, nil
	}
	if !isCorrupt(err) || c.Path == MemoryPath {
		return nil, err
	}

	backup := fmt.Sprintf("%s.%d.bak", c.Path, time.Now().Unix())
	c.Logger.Warn("fact database is corrupt, moving it aside",
		"path", c.Path,
		"backup", backup,
		"error", err,
	)
	if err := os.Rename(c.Path, backup); err != nil {
		return nil, fmt.Errorf("failed to move corrupt database: %w", err)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(c.Path + suffix)
	}

	inner, err = open(ctx, c, opts)
	if err != nil {
		return nil, err
	}
	return &Store{Store: inner, Backup: backup}, nil
}

func open(ctx context.Context, c Config, opts []facts.Option) (*sqlstore.Store, error) {
	db, err := sql.Open("sqlite3", dsn(c))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	if c.Path == MemoryPath {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s, err := sqlstore.New(ctx, db, dialect, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// dsn opens every transaction with BEGIN IMMEDIATE. A deferred transaction
// that upgrades from a read lock to a write lock fails with SQLITE_BUSY
// without waiting out the busy timeout.
func dsn(c Config) string {
	params := []string{
		"_foreign_keys=on",
		fmt.Sprintf("_busy_timeout=%d", c.BusyTimeout.Milliseconds()),
		"_txlock=immediate",
	}
	if c.Path != MemoryPath {
		params = append(params, "_journal_mode=WAL", "_synchronous=NORMAL")
	}
	return c.Path + "?" + strings.Join(params, "&")
}

func isCorrupt(err error) bool {
	var sqlErr sqlite3.Error
	if !errors.As(err, &sqlErr) {
		return false
	}
	return sqlErr.Code == sqlite3.ErrCorrupt || sqlErr.Code == sqlite3.ErrNotADB
}
