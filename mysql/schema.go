package mysql

import (
	"fmt"

	"github.com/velmie/txoutbox/internal/sqlstore"
)

const schemaTemplate = `CREATE TABLE IF NOT EXISTS %s (
	id CHAR(36) NOT NULL,
	topic VARCHAR(255) NOT NULL,
	data LONGBLOB NOT NULL,
	attributes JSON NULL,
	event_key VARCHAR(255) NULL,
	lease_expiration BIGINT NULL,
	PRIMARY KEY (id),
	INDEX idx_lease_expiration (lease_expiration)
);`

// Schema returns the outbox table definition.
func Schema(table string) (string, error) {
	name, err := sqlstore.SanitizeTableName(table)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(schemaTemplate, name), nil
}
