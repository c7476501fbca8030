package mysql

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/velmie/txoutbox/internal/sqlstore"
)

const (
	errDeadlock        = 1213
	errLockWaitTimeout = 1205
)

// Store implements a MySQL-backed state store and outbox.
type Store struct {
	*sqlstore.Store
}

// NewStore constructs a MySQL store with validated configuration.
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

// MustNewStore constructs a MySQL store or panics on error.
func MustNewStore(db *sql.DB, opts ...Option) *Store {
	store, err := NewStore(db, opts...)
	if err != nil {
		panic(err)
	}

	return store
}

// Open opens a database for dsn and constructs a store on it.
// parseTime is not required, the outbox stores leases as integers.
func Open(dsn string, opts ...Option) (*Store, error) {
	if dsn == "" {
		return nil, ErrDSNRequired
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("outbox mysql: open failed: %w", err)
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
		Name:           "mysql",
		Placeholder:    sqlstore.QuestionPlaceholder,
		Upsert:         sqlstore.ReplaceInto,
		Claim:          sqlstore.ClaimSelectForUpdate,
		LockClause:     " FOR UPDATE SKIP LOCKED",
		TxOptions:      txOptions,
		ClaimTxOptions: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
		IsRetryable:    isRetryable,
	}
}

func isRetryable(err error) bool {
	var mysqlErr *mysql.MySQLError
	if !errors.As(err, &mysqlErr) {
		return false
	}

	return mysqlErr.Number == errDeadlock || mysqlErr.Number == errLockWaitTimeout
}
