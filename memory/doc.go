// Package memory provides an in-process outbox storage engine.
//
// Transactions are optimistic: every row a transaction reads or writes is versioned and the
// commit fails with a retryable ErrConflict when one of them changed in the meantime.
// Lease claims run under the store lock, so concurrent senders never claim the same row.
//
// The store is meant for tests and single-process tools, nothing is persisted.
package memory
