package sqlstore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velmie/txoutbox"
)

var (
	question = Dialect{Name: "test", Placeholder: QuestionPlaceholder, Upsert: ReplaceInto}
	dollar   = Dialect{Name: "test", Placeholder: DollarPlaceholder, Upsert: InsertOnConflict, LockClause: " FOR UPDATE SKIP LOCKED"}
)

func TestSanitizeTableName(t *testing.T) {
	name, err := SanitizeTableName("app.outbox_1")
	require.NoError(t, err)
	assert.Equal(t, "app.outbox_1", name)

	_, err = SanitizeTableName("")
	assert.ErrorIs(t, err, ErrTableNameRequired)

	for _, bad := range []string{"outbox;", "app..outbox", ".outbox", "out box", "outbox-1", "`outbox`"} {
		_, err := SanitizeTableName(bad)
		assert.ErrorIs(t, err, ErrInvalidTableName, bad)
	}
}

func TestSanitizeColumns(t *testing.T) {
	require.NoError(t, sanitizeColumns([]string{"id", "updated_at"}))
	assert.ErrorIs(t, sanitizeColumns([]string{"id", "a.b"}), ErrInvalidColumnName)
	assert.ErrorIs(t, sanitizeColumns([]string{""}), ErrInvalidColumnName)
}

func TestClaimQueries(t *testing.T) {
	q := newQueries(question, "outbox")
	assert.Equal(t,
		"SELECT id, topic, data, attributes, event_key, lease_expiration FROM outbox "+
			"WHERE (lease_expiration IS NULL OR lease_expiration <= ?) ORDER BY id ASC LIMIT ?",
		q.selectClaimable)
	assert.Equal(t, "SELECT COUNT(*) FROM outbox", q.countPending)

	q = newQueries(dollar, "app.outbox")
	assert.Equal(t,
		"UPDATE app.outbox SET lease_expiration = $1 WHERE id IN (SELECT id FROM app.outbox "+
			"WHERE (lease_expiration IS NULL OR lease_expiration <= $2) ORDER BY id ASC LIMIT $3 FOR UPDATE SKIP LOCKED) "+
			"RETURNING id, topic, data, attributes, event_key, lease_expiration",
		q.claimReturning)
}

func TestLeaseUpdateAndDelete(t *testing.T) {
	assert.Equal(t, "UPDATE outbox SET lease_expiration = ? WHERE id IN (?,?)", buildLeaseUpdate(question, "outbox", 2))
	assert.Equal(t, "UPDATE outbox SET lease_expiration = $1 WHERE id IN ($2,$3,$4)", buildLeaseUpdate(dollar, "outbox", 3))
	assert.Equal(t, "DELETE FROM outbox WHERE id IN ($1,$2)", buildDeleteByIDs(dollar, "outbox", 2))
}

func TestEntityQueries(t *testing.T) {
	keys := []string{"tenant", "id"}
	values := []string{"status", "note"}

	assert.Equal(t,
		"REPLACE INTO orders (tenant, id, status, note) VALUES (?,?,?,?)",
		ReplaceInto(question, "orders", keys, values))
	assert.Equal(t,
		"INSERT INTO orders (tenant, id, status, note) VALUES ($1,$2,$3,$4) ON CONFLICT (tenant, id) "+
			"DO UPDATE SET status = EXCLUDED.status, note = EXCLUDED.note",
		InsertOnConflict(dollar, "orders", keys, values))
	assert.Equal(t,
		"INSERT INTO tags (id) VALUES ($1) ON CONFLICT (id) DO NOTHING",
		InsertOnConflict(dollar, "tags", []string{"id"}, nil))
	assert.Equal(t, "DELETE FROM orders WHERE tenant = $1 AND id = $2", buildDelete(dollar, "orders", keys))
	assert.Equal(t,
		"SELECT tenant, id, status, note FROM orders WHERE tenant = ? AND id = ?",
		buildSelect(question, "orders", keys, values))
}

func TestColumnValues(t *testing.T) {
	keys := []outbox.Column{{Name: "id", Value: "o-1"}}
	values := []outbox.Column{{Name: "status", Value: "new"}, {Name: "note", Value: nil}}

	assert.Equal(t, []string{"status", "note"}, columnNames(values))
	assert.Equal(t, []any{"o-1", "new", nil}, columnValues(keys, values))
	assert.Empty(t, columnValues())
}

func TestClassify(t *testing.T) {
	errLocked := errors.New("locked")
	s := &Store{dialect: Dialect{IsRetryable: func(err error) bool { return errors.Is(err, errLocked) }}}

	assert.True(t, outbox.IsRetryable(s.classify(errLocked)))
	assert.ErrorIs(t, s.classify(errLocked), errLocked)
	assert.False(t, outbox.IsRetryable(s.classify(errors.New("syntax"))))
	assert.NoError(t, s.classify(nil))

	assert.False(t, outbox.IsRetryable((&Store{}).classify(errLocked)))
}

func TestNewRequiresDB(t *testing.T) {
	_, err := New(nil, question, Config{OutboxTable: "outbox"})
	assert.ErrorIs(t, err, ErrDBRequired)
}
