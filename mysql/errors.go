package mysql

import (
	"errors"

	"github.com/velmie/txoutbox/internal/sqlstore"
)

var (
	// ErrDBRequired is returned when a nil *sql.DB is provided.
	ErrDBRequired = sqlstore.ErrDBRequired
	// ErrTableNameRequired is returned when the table name is empty.
	ErrTableNameRequired = sqlstore.ErrTableNameRequired
	// ErrInvalidTableName is returned when the table name has disallowed characters.
	ErrInvalidTableName = sqlstore.ErrInvalidTableName
	// ErrDSNRequired is returned when Open receives an empty DSN.
	ErrDSNRequired = errors.New("outbox mysql: dsn is required")
)
