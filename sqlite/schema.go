package sqlite

import (
	"fmt"
	"strings"

	"github.com/velmie/txoutbox/internal/sqlstore"
)

const schemaTemplate = `CREATE TABLE IF NOT EXISTS %s (
	id TEXT NOT NULL PRIMARY KEY,
	topic TEXT NOT NULL,
	data BLOB NOT NULL,
	attributes TEXT NULL,
	event_key TEXT NULL,
	lease_expiration INTEGER NULL
);
CREATE INDEX IF NOT EXISTS %s_lease_expiration_idx ON %s (lease_expiration);`

// Schema returns the outbox table definition. Schema-qualified names are not supported.
func Schema(table string) (string, error) {
	name, err := sqlstore.SanitizeTableName(table)
	if err != nil {
		return "", err
	}
	if strings.Contains(name, ".") {
		return "", fmt.Errorf("%w: %s", ErrInvalidTableName, name)
	}

	return fmt.Sprintf(schemaTemplate, name, name, name), nil
}
