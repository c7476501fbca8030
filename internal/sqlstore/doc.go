// Package sqlstore implements the outbox state and outbox stores on database/sql.
// Engine packages (mysql, postgres, sqlite) supply a Dialect.
package sqlstore
