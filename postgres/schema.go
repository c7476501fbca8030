package postgres

import (
	"fmt"
	"strings"

	"github.com/velmie/txoutbox/internal/sqlstore"
)

const schemaTemplate = `CREATE TABLE IF NOT EXISTS %s (
	id VARCHAR(36) PRIMARY KEY,
	topic VARCHAR(255) NOT NULL,
	data BYTEA NOT NULL,
	attributes TEXT NULL,
	event_key VARCHAR(255) NULL,
	lease_expiration BIGINT NULL
);
CREATE INDEX IF NOT EXISTS %s_lease_expiration_idx ON %s (lease_expiration);`

// Schema returns the outbox table definition.
// The statements must be executed with a multi-statement capable connection.
func Schema(table string) (string, error) {
	name, err := sqlstore.SanitizeTableName(table)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(schemaTemplate, name, strings.ReplaceAll(name, ".", "_"), name), nil
}
