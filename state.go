package outbox

import "context"

// Column is a named column value of an entity.
type Column struct {
	Name  string
	Value any
}

// Entity is a record a StateTransaction can persist.
type Entity interface {
	// EntityName is the logical collection name. Storage engines map it to a table.
	EntityName() string
	// KeyColumns returns the primary key columns. They identify the row in Find and Delete.
	KeyColumns() []Column
	// ValueColumns returns every non-key column. Replace writes all of them.
	ValueColumns() []Column
	// Scan loads the entity from a row laid out as KeyColumns followed by ValueColumns.
	Scan(scan func(dest ...any) error) error
}

// StateTransaction is a single atomic unit of work against durable storage.
type StateTransaction interface {
	// Replace upserts the whole entity. Columns with nil values are stored as NULL, nothing is merged.
	Replace(ctx context.Context, entity Entity) error
	// DeleteWithSameKeyAs deletes the row whose key matches the key columns of template.
	// Deleting a missing row is not an error.
	DeleteWithSameKeyAs(ctx context.Context, template Entity) error
	// FindOneWithSameKeyAs looks up the row whose key matches the key columns of dst and,
	// when found, loads it into dst.
	FindOneWithSameKeyAs(ctx context.Context, dst Entity) (bool, error)
}

// StateStore opens storage-native transactions.
type StateStore interface {
	// RunStateTransaction runs fn inside a new storage transaction. The transaction commits
	// only when fn returns nil. Storage write conflicts are returned marked Retryable.
	RunStateTransaction(ctx context.Context, fn func(ctx context.Context, state StateTransaction) error) error
}
