package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/velmie/txoutbox"
)

type stateTx struct {
	tx    *sql.Tx
	store *Store
}

func (t *stateTx) Replace(ctx context.Context, entity outbox.Entity) error {
	table, keys, err := t.resolve(entity)
	if err != nil {
		return err
	}
	values := entity.ValueColumns()
	if err := sanitizeColumns(columnNames(values)); err != nil {
		return err
	}

	query := t.store.dialect.Upsert(t.store.dialect, table, columnNames(keys), columnNames(values))
	if _, err := t.tx.ExecContext(ctx, query, columnValues(keys, values)...); err != nil {
		return fmt.Errorf("outbox %s: replace into %s failed: %w", t.store.dialect.Name, table, err)
	}

	return nil
}

func (t *stateTx) DeleteWithSameKeyAs(ctx context.Context, template outbox.Entity) error {
	table, keys, err := t.resolve(template)
	if err != nil {
		return err
	}

	query := buildDelete(t.store.dialect, table, columnNames(keys))
	if _, err := t.tx.ExecContext(ctx, query, columnValues(keys)...); err != nil {
		return fmt.Errorf("outbox %s: delete from %s failed: %w", t.store.dialect.Name, table, err)
	}

	return nil
}

func (t *stateTx) FindOneWithSameKeyAs(ctx context.Context, dst outbox.Entity) (bool, error) {
	table, keys, err := t.resolve(dst)
	if err != nil {
		return false, err
	}
	values := columnNames(dst.ValueColumns())
	if err := sanitizeColumns(values); err != nil {
		return false, err
	}

	query := buildSelect(t.store.dialect, table, columnNames(keys), values)
	row := t.tx.QueryRowContext(ctx, query, columnValues(keys)...)
	if err := dst.Scan(row.Scan); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}

		return false, fmt.Errorf("outbox %s: select from %s failed: %w", t.store.dialect.Name, table, err)
	}

	return true, nil
}

func (t *stateTx) resolve(entity outbox.Entity) (string, []outbox.Column, error) {
	if entity == nil {
		return "", nil, outbox.ErrEntityRequired
	}
	keys := entity.KeyColumns()
	if len(keys) == 0 {
		return "", nil, outbox.ErrKeyRequired
	}
	if err := sanitizeColumns(columnNames(keys)); err != nil {
		return "", nil, err
	}

	table, err := t.store.TableFor(entity.EntityName())
	if err != nil {
		return "", nil, err
	}

	return table, keys, nil
}
