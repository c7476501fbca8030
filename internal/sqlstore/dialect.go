package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"
)

// ClaimMode selects how rows are leased.
type ClaimMode int

const (
	// ClaimSelectForUpdate selects claimable rows with Dialect.LockClause inside a transaction
	// and then writes their lease.
	ClaimSelectForUpdate ClaimMode = iota
	// ClaimUpdateReturning leases rows with a single UPDATE ... RETURNING statement.
	ClaimUpdateReturning
)

// Dialect describes the SQL differences between engines.
type Dialect struct {
	// Name prefixes error messages, e.g. "mysql".
	Name string
	// Placeholder returns the n-th (1-based) bind parameter.
	Placeholder func(n int) string
	// Upsert builds a full-replace statement for table. Parameters bind keys then values.
	Upsert func(d Dialect, table string, keys, values []string) string
	// Claim selects the claim strategy.
	Claim ClaimMode
	// LockClause is appended to the claim SELECT (e.g. " FOR UPDATE SKIP LOCKED").
	LockClause string
	// TxOptions are used for state transactions.
	TxOptions *sql.TxOptions
	// ClaimTxOptions are used for ClaimSelectForUpdate transactions.
	ClaimTxOptions *sql.TxOptions
	// IsRetryable reports driver errors that are safe to retry from a fresh transaction.
	IsRetryable func(err error) bool
}

// QuestionPlaceholder binds parameters as "?".
func QuestionPlaceholder(int) string {
	return "?"
}

// DollarPlaceholder binds parameters as "$n".
func DollarPlaceholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// ReplaceInto builds "REPLACE INTO" upserts (MySQL, SQLite).
func ReplaceInto(d Dialect, table string, keys, values []string) string {
	cols := append(append([]string{}, keys...), values...)

	return fmt.Sprintf("REPLACE INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), d.placeholders(1, len(cols)))
}

// InsertOnConflict builds "INSERT ... ON CONFLICT DO UPDATE" upserts (PostgreSQL).
func InsertOnConflict(d Dialect, table string, keys, values []string) string {
	cols := append(append([]string{}, keys...), values...)
	stmt := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) ",
		table,
		strings.Join(cols, ", "),
		d.placeholders(1, len(cols)),
		strings.Join(keys, ", "),
	)
	if len(values) == 0 {
		return stmt + "DO NOTHING"
	}

	sets := make([]string, len(values))
	for i, col := range values {
		sets[i] = fmt.Sprintf("%s = EXCLUDED.%s", col, col)
	}

	return stmt + "DO UPDATE SET " + strings.Join(sets, ", ")
}

// placeholders returns count comma-separated parameters starting at from.
func (d Dialect) placeholders(from, count int) string {
	if count <= 0 {
		return ""
	}

	parts := make([]string, count)
	for i := range parts {
		parts[i] = d.Placeholder(from + i)
	}

	return strings.Join(parts, ",")
}

func (d Dialect) where(cols []string, from int) string {
	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = fmt.Sprintf("%s = %s", col, d.Placeholder(from+i))
	}

	return strings.Join(parts, " AND ")
}
