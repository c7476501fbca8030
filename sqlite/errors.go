package sqlite

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
	// ErrPathRequired indicates an empty database path.
	ErrPathRequired = errors.New("outbox sqlite: path is required")
)
