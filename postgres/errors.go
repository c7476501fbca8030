package postgres

import (
	"errors"

	"github.com/velmie/txoutbox/internal/sqlstore"
)

var (
	// ErrDBRequired indicates a nil database handle.
	ErrDBRequired = sqlstore.ErrDBRequired
	// ErrTableNameRequired indicates an empty table name.
	ErrTableNameRequired = sqlstore.ErrTableNameRequired
	// ErrInvalidTableName indicates an unsafe table name.
	ErrInvalidTableName = sqlstore.ErrInvalidTableName
	// ErrDSNRequired indicates an empty connection string.
	ErrDSNRequired = errors.New("outbox postgres: dsn is required")
)
