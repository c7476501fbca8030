// Package mysql provides a MySQL 8.0+ outbox storage engine.
//
// State transactions write entities with REPLACE INTO, so a replace always overwrites every column.
// The sender claims rows using:
//   - READ COMMITTED isolation (to avoid gap locks)
//   - SELECT ... FOR UPDATE SKIP LOCKED
//   - a lease UPDATE in the same transaction
//
// Deadlocks (1213) and lock wait timeouts (1205) are reported as retryable.
// See Schema for the outbox table definition.
package mysql
