// Package sqlite provides a SQLite storage engine for the outbox, built on mattn/go-sqlite3.
//
// The store is meant for single-process deployments and tests. Open configures WAL mode and a
// single connection, so state transactions and claims are serialized by the database handle.
package sqlite
