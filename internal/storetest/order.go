package storetest

import (
	"database/sql"

	"github.com/velmie/txoutbox"
)

// OrderEntity is the entity name of Order.
const OrderEntity = "orders"

// Order is a sample business entity.
type Order struct {
	ID        string
	Status    string
	Note      *string
	UpdatedAt int64
}

var _ outbox.Entity = (*Order)(nil)

// EntityName implements outbox.Entity.
func (o *Order) EntityName() string {
	return OrderEntity
}

// KeyColumns implements outbox.Entity.
func (o *Order) KeyColumns() []outbox.Column {
	return []outbox.Column{{Name: "id", Value: o.ID}}
}

// ValueColumns implements outbox.Entity.
func (o *Order) ValueColumns() []outbox.Column {
	var note any
	if o.Note != nil {
		note = *o.Note
	}

	return []outbox.Column{
		{Name: "status", Value: o.Status},
		{Name: "note", Value: note},
		{Name: "updated_at", Value: o.UpdatedAt},
	}
}

// Scan implements outbox.Entity.
func (o *Order) Scan(scan func(dest ...any) error) error {
	var (
		id      string
		status  string
		note    sql.NullString
		updated int64
	)
	if err := scan(&id, &status, &note, &updated); err != nil {
		return err
	}

	*o = Order{ID: id, Status: status, UpdatedAt: updated}
	if note.Valid {
		o.Note = &note.String
	}

	return nil
}
