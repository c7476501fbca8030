package sqlstore

import "errors"

var (
	// ErrDBRequired is returned when a nil *sql.DB is provided.
	ErrDBRequired = errors.New("outbox sql: db is required")
	// ErrTableNameRequired is returned when a table name is empty.
	ErrTableNameRequired = errors.New("outbox sql: table name is required")
	// ErrInvalidTableName is returned when a table name has disallowed characters.
	ErrInvalidTableName = errors.New("outbox sql: invalid table name")
	// ErrInvalidColumnName is returned when an entity column has disallowed characters.
	ErrInvalidColumnName = errors.New("outbox sql: invalid column name")
)
