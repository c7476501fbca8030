package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/velmie/txoutbox"
)

// Config maps entities to tables.
type Config struct {
	// OutboxTable is the table holding outbox rows.
	OutboxTable string
	// Tables maps entity names to table names. Unmapped entities use their name as table.
	Tables map[string]string
}

// Store implements outbox.StateStore, outbox.OutboxStore and outbox.PendingCounter on database/sql.
type Store struct {
	db      *sql.DB
	dialect Dialect
	tables  map[string]string
	outbox  string
	queries queries
}

var (
	_ outbox.StateStore     = (*Store)(nil)
	_ outbox.OutboxStore    = (*Store)(nil)
	_ outbox.PendingCounter = (*Store)(nil)
)

// New validates cfg and constructs a Store.
func New(db *sql.DB, dialect Dialect, cfg Config) (*Store, error) {
	if db == nil {
		return nil, ErrDBRequired
	}

	table, err := SanitizeTableName(cfg.OutboxTable)
	if err != nil {
		return nil, err
	}

	tables := make(map[string]string, len(cfg.Tables)+1)
	for entity, name := range cfg.Tables {
		sanitized, err := SanitizeTableName(name)
		if err != nil {
			return nil, err
		}
		tables[entity] = sanitized
	}
	tables[outbox.EventEntityName] = table

	return &Store{
		db:      db,
		dialect: dialect,
		tables:  tables,
		outbox:  table,
		queries: newQueries(dialect, table),
	}, nil
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// OutboxTable returns the outbox table name.
func (s *Store) OutboxTable() string {
	return s.outbox
}

// TableFor returns the table an entity is stored in.
func (s *Store) TableFor(entity string) (string, error) {
	if table, ok := s.tables[entity]; ok {
		return table, nil
	}

	return SanitizeTableName(entity)
}

// RunStateTransaction runs fn inside a database transaction and commits when fn returns nil.
func (s *Store) RunStateTransaction(
	ctx context.Context,
	fn func(ctx context.Context, state outbox.StateTransaction) error,
) (err error) {
	tx, err := s.db.BeginTx(ctx, s.dialect.TxOptions)
	if err != nil {
		return s.classify(fmt.Errorf("outbox %s: begin tx failed: %w", s.dialect.Name, err))
	}
	defer func() {
		if rec := recover(); rec != nil {
			_ = tx.Rollback()
			panic(rec)
		}
	}()

	if err := fn(ctx, &stateTx{tx: tx, store: s}); err != nil {
		return rollbackWith(tx, s.classify(err))
	}

	if err := tx.Commit(); err != nil {
		return s.classify(fmt.Errorf("outbox %s: commit failed: %w", s.dialect.Name, err))
	}

	return nil
}

// FetchEvents leases up to opts.BatchSize rows whose lease is absent or expired.
func (s *Store) FetchEvents(ctx context.Context, opts outbox.FetchOptions) ([]outbox.Event, error) {
	if opts.BatchSize <= 0 {
		return nil, outbox.ErrInvalidBatchSize
	}

	if s.dialect.Claim == ClaimUpdateReturning {
		return s.claimReturning(ctx, opts)
	}

	return s.claimSelectForUpdate(ctx, opts)
}

func (s *Store) claimReturning(ctx context.Context, opts outbox.FetchOptions) ([]outbox.Event, error) {
	rows, err := s.db.QueryContext(
		ctx,
		s.queries.claimReturning,
		opts.LeaseExpiration.UnixMilli(),
		opts.Now.UnixMilli(),
		opts.BatchSize,
	)
	if err != nil {
		return nil, s.classify(fmt.Errorf("outbox %s: claim failed: %w", s.dialect.Name, err))
	}

	events, err := s.scanEvents(rows, opts.BatchSize)
	if err != nil {
		return nil, s.classify(err)
	}

	return events, nil
}

func (s *Store) claimSelectForUpdate(ctx context.Context, opts outbox.FetchOptions) ([]outbox.Event, error) {
	tx, err := s.db.BeginTx(ctx, s.dialect.ClaimTxOptions)
	if err != nil {
		return nil, s.classify(fmt.Errorf("outbox %s: begin claim tx failed: %w", s.dialect.Name, err))
	}

	rows, err := tx.QueryContext(ctx, s.queries.selectClaimable, opts.Now.UnixMilli(), opts.BatchSize)
	if err != nil {
		return nil, rollbackWith(tx, s.classify(fmt.Errorf("outbox %s: select failed: %w", s.dialect.Name, err)))
	}
	events, err := s.scanEvents(rows, opts.BatchSize)
	if err != nil {
		return nil, rollbackWith(tx, err)
	}
	if len(events) == 0 {
		_ = tx.Rollback()

		return nil, nil
	}

	lease := opts.LeaseExpiration.UTC()
	args := make([]any, 0, len(events)+1)
	args = append(args, lease.UnixMilli())
	for i := range events {
		args = append(args, events[i].ID.String())
	}
	if _, err := tx.ExecContext(ctx, buildLeaseUpdate(s.dialect, s.outbox, len(events)), args...); err != nil {
		return nil, rollbackWith(tx, s.classify(fmt.Errorf("outbox %s: lease update failed: %w", s.dialect.Name, err)))
	}
	if err := tx.Commit(); err != nil {
		return nil, s.classify(fmt.Errorf("outbox %s: claim commit failed: %w", s.dialect.Name, err))
	}

	for i := range events {
		expiration := lease
		events[i].LeaseExpiration = &expiration
	}

	return events, nil
}

func (s *Store) scanEvents(rows *sql.Rows, capacity int) ([]outbox.Event, error) {
	defer rows.Close()

	events := make([]outbox.Event, 0, capacity)
	for rows.Next() {
		var event outbox.Event
		if err := event.Scan(rows.Scan); err != nil {
			return nil, fmt.Errorf("outbox %s: scan failed: %w", s.dialect.Name, err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox %s: rows failed: %w", s.dialect.Name, err)
	}

	return events, nil
}

// UpdateOutbox deletes delivered rows.
func (s *Store) UpdateOutbox(ctx context.Context, delivered []outbox.Event) error {
	if len(delivered) == 0 {
		return nil
	}

	args := make([]any, len(delivered))
	for i := range delivered {
		args[i] = delivered[i].ID.String()
	}
	if _, err := s.db.ExecContext(ctx, buildDeleteByIDs(s.dialect, s.outbox, len(delivered)), args...); err != nil {
		return fmt.Errorf("outbox %s: delete delivered failed: %w", s.dialect.Name, err)
	}

	return nil
}

// PendingCount returns the number of outbox rows.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, s.queries.countPending).Scan(&count); err != nil {
		return 0, fmt.Errorf("outbox %s: pending count failed: %w", s.dialect.Name, err)
	}

	return count, nil
}

func (s *Store) classify(err error) error {
	if err == nil || s.dialect.IsRetryable == nil {
		return err
	}
	if s.dialect.IsRetryable(err) {
		return outbox.Retryable(err)
	}

	return err
}

func rollbackWith(tx *sql.Tx, err error) error {
	rollbackErr := tx.Rollback()
	if rollbackErr == nil || errors.Is(rollbackErr, sql.ErrTxDone) {
		return err
	}

	return errors.Join(err, fmt.Errorf("outbox rollback failed: %w", rollbackErr))
}
