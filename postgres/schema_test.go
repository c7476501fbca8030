package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSchema(t *testing.T) {
	schema, err := Schema("events.outbox")
	require.NoError(t, err)
	require.True(t, strings.Contains(schema, "CREATE TABLE IF NOT EXISTS events.outbox"))
	require.True(t, strings.Contains(schema, "events_outbox_lease_expiration_idx ON events.outbox"))
	require.True(t, strings.Contains(schema, "data BYTEA NOT NULL"))
}

func TestSchemaInvalidTable(t *testing.T) {
	_, err := Schema("bad-table")
	require.ErrorIs(t, err, ErrInvalidTableName)

	_, err = Schema("")
	require.ErrorIs(t, err, ErrTableNameRequired)
}
