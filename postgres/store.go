package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/velmie/txoutbox/internal/sqlstore"
)

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// Store implements a PostgreSQL-backed state store and outbox.
type Store struct {
	*sqlstore.Store
}

// NewStore constructs a PostgreSQL store on db, which must use the pgx driver.
func NewStore(db *sql.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrDBRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	store, err := sqlstore.New(db, dialect(cfg), sqlstore.Config{OutboxTable: cfg.Table, Tables: cfg.Tables})
	if err != nil {
		return nil, err
	}

	return &Store{Store: store}, nil
}

// MustNewStore constructs a PostgreSQL store or panics on error.
func MustNewStore(db *sql.DB, opts ...Option) *Store {
	store, err := NewStore(db, opts...)
	if err != nil {
		panic(err)
	}

	return store
}

// Open opens a pgx database for dsn and constructs a store on it.
func Open(dsn string, opts ...Option) (*Store, error) {
	if dsn == "" {
		return nil, ErrDSNRequired
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("outbox postgres: open failed: %w", err)
	}

	store, err := NewStore(db, opts...)
	if err != nil {
		_ = db.Close()

		return nil, err
	}

	return store, nil
}

func dialect(cfg Config) sqlstore.Dialect {
	var txOptions *sql.TxOptions
	if cfg.Isolation != sql.LevelDefault {
		txOptions = &sql.TxOptions{Isolation: cfg.Isolation}
	}

	return sqlstore.Dialect{
		Name:        "postgres",
		Placeholder: sqlstore.DollarPlaceholder,
		Upsert:      sqlstore.InsertOnConflict,
		Claim:       sqlstore.ClaimUpdateReturning,
		LockClause:  " FOR UPDATE SKIP LOCKED",
		TxOptions:   txOptions,
		IsRetryable: isRetryable,
	}
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}

	return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
}
