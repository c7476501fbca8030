package sqlstore

import (
	"fmt"
	"strings"

	"github.com/velmie/txoutbox"
)

var eventColumns = strings.Join([]string{
	outbox.ColumnID,
	outbox.ColumnTopic,
	outbox.ColumnData,
	outbox.ColumnAttributes,
	outbox.ColumnKey,
	outbox.ColumnLeaseExpiration,
}, ", ")

type queries struct {
	selectClaimable string
	claimReturning  string
	countPending    string
}

func newQueries(d Dialect, table string) queries {
	claimable := fmt.Sprintf("(%s IS NULL OR %s <= ", outbox.ColumnLeaseExpiration, outbox.ColumnLeaseExpiration)

	selectClaimable := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s%s) ORDER BY %s ASC LIMIT %s%s",
		eventColumns,
		table,
		claimable,
		d.Placeholder(1),
		outbox.ColumnID,
		d.Placeholder(2),
		d.LockClause,
	)
	claimReturning := fmt.Sprintf(
		"UPDATE %s SET %s = %s WHERE %s IN (SELECT %s FROM %s WHERE %s%s) ORDER BY %s ASC LIMIT %s%s) RETURNING %s",
		table,
		outbox.ColumnLeaseExpiration,
		d.Placeholder(1),
		outbox.ColumnID,
		outbox.ColumnID,
		table,
		claimable,
		d.Placeholder(2),
		outbox.ColumnID,
		d.Placeholder(3),
		d.LockClause,
		eventColumns,
	)

	return queries{
		selectClaimable: selectClaimable,
		claimReturning:  claimReturning,
		countPending:    fmt.Sprintf("SELECT COUNT(*) FROM %s", table),
	}
}

// buildLeaseUpdate sets the lease of count rows; parameters are the lease then the ids.
func buildLeaseUpdate(d Dialect, table string, count int) string {
	return fmt.Sprintf(
		"UPDATE %s SET %s = %s WHERE %s IN (%s)",
		table,
		outbox.ColumnLeaseExpiration,
		d.Placeholder(1),
		outbox.ColumnID,
		d.placeholders(2, count),
	)
}

func buildDeleteByIDs(d Dialect, table string, count int) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)", table, outbox.ColumnID, d.placeholders(1, count))
}

func buildDelete(d Dialect, table string, keys []string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s", table, d.where(keys, 1))
}

func buildSelect(d Dialect, table string, keys, values []string) string {
	cols := append(append([]string{}, keys...), values...)

	return fmt.Sprintf("SELECT %s FROM %s WHERE %s", strings.Join(cols, ", "), table, d.where(keys, 1))
}

func columnNames(cols []outbox.Column) []string {
	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.Name
	}

	return names
}

func columnValues(groups ...[]outbox.Column) []any {
	var n int
	for _, g := range groups {
		n += len(g)
	}

	args := make([]any, 0, n)
	for _, g := range groups {
		for _, col := range g {
			args = append(args, col.Value)
		}
	}

	return args
}
