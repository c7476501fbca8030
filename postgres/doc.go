// Package postgres provides a PostgreSQL storage engine for the outbox, built on pgx.
//
// State transactions upsert entities with INSERT ... ON CONFLICT and rows are claimed with a
// single UPDATE ... RETURNING statement whose subquery skips rows locked by concurrent claimers.
// Serialization failures and deadlocks are reported as retryable.
package postgres
