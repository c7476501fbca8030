package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/velmie/txoutbox/internal/sqlstore"
)

// Store implements a SQLite-backed state store and outbox.
type Store struct {
	*sqlstore.Store
}

// NewStore constructs a SQLite store on db. The outbox table must exist.
func NewStore(db *sql.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrDBRequired
	}

	cfg := newConfig(opts)
	if _, err := Schema(cfg.Table); err != nil {
		return nil, err
	}

	store, err := sqlstore.New(db, dialect(), sqlstore.Config{OutboxTable: cfg.Table, Tables: cfg.Tables})
	if err != nil {
		return nil, err
	}

	return &Store{Store: store}, nil
}

// Open creates or opens the database at path, applies pragmas and creates the outbox table.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, ErrPathRequired
	}
	cfg := newConfig(opts)

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("outbox sqlite: open failed: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := prepare(ctx, db, cfg); err != nil {
		_ = db.Close()

		return nil, err
	}

	store, err := NewStore(db, opts...)
	if err != nil {
		_ = db.Close()

		return nil, err
	}

	return store, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.DB().Close()
}

func newConfig(opts []Option) Config {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg.withDefaults()
}

func prepare(ctx context.Context, db *sql.DB, cfg Config) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("outbox sqlite: connect failed: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()),
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("outbox sqlite: %q failed: %w", pragma, err)
		}
	}

	schema, err := Schema(cfg.Table)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("outbox sqlite: create schema failed: %w", err)
	}

	return nil
}

func dialect() sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:        "sqlite",
		Placeholder: sqlstore.QuestionPlaceholder,
		Upsert:      sqlstore.ReplaceInto,
		Claim:       sqlstore.ClaimUpdateReturning,
		IsRetryable: isRetryable,
	}
}

func isRetryable(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}
