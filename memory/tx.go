package memory

import (
	"context"

	"github.com/velmie/txoutbox"
)

type stateTx struct {
	store  *Store
	seen   map[rowRef]uint64
	writes map[rowRef]*row
	order  []rowRef
}

func (tx *stateTx) Replace(_ context.Context, entity outbox.Entity) error {
	ref, err := tx.ref(entity)
	if err != nil {
		return err
	}
	tx.write(ref, &row{
		keys:   cloneColumns(entity.KeyColumns()),
		values: cloneColumns(entity.ValueColumns()),
	})

	return nil
}

func (tx *stateTx) DeleteWithSameKeyAs(_ context.Context, template outbox.Entity) error {
	ref, err := tx.ref(template)
	if err != nil {
		return err
	}
	tx.write(ref, nil)

	return nil
}

func (tx *stateTx) FindOneWithSameKeyAs(_ context.Context, dst outbox.Entity) (bool, error) {
	ref, err := tx.ref(dst)
	if err != nil {
		return false, err
	}

	if written, ok := tx.writes[ref]; ok {
		if written == nil {
			return false, nil
		}

		return true, dst.Scan(written.scan)
	}

	tx.store.mu.Lock()
	current, ok := tx.store.rows[ref]
	tx.touchLocked(ref)
	tx.store.mu.Unlock()

	if !ok {
		return false, nil
	}

	return true, dst.Scan(current.scan)
}

func (tx *stateTx) ref(entity outbox.Entity) (rowRef, error) {
	if entity == nil {
		return rowRef{}, outbox.ErrEntityRequired
	}
	keys := entity.KeyColumns()
	if len(keys) == 0 {
		return rowRef{}, outbox.ErrKeyRequired
	}

	return rowRef{entity: entity.EntityName(), key: encodeKey(keys)}, nil
}

func (tx *stateTx) write(ref rowRef, r *row) {
	tx.store.mu.Lock()
	tx.touchLocked(ref)
	tx.store.mu.Unlock()

	if _, ok := tx.writes[ref]; !ok {
		tx.order = append(tx.order, ref)
	}
	tx.writes[ref] = r
}

// touchLocked records the committed version of ref the first time the transaction sees it.
func (tx *stateTx) touchLocked(ref rowRef) {
	if _, ok := tx.seen[ref]; ok {
		return
	}
	tx.seen[ref] = tx.store.versionLocked(ref)
}
