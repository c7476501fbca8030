package outbox

import (
	"context"
	"time"
)

// FetchOptions controls how claimable rows are selected and leased.
type FetchOptions struct {
	// BatchSize caps the number of rows claimed.
	BatchSize int
	// Now is the instant used to decide whether a lease expired.
	Now time.Time
	// LeaseExpiration is written on every claimed row.
	LeaseExpiration time.Time
}

// OutboxStore is the storage side of the sender.
type OutboxStore interface {
	// FetchEvents atomically claims up to BatchSize rows whose lease is absent or expired at Now
	// by writing LeaseExpiration, and returns them.
	FetchEvents(ctx context.Context, opts FetchOptions) ([]Event, error)
	// UpdateOutbox removes delivered rows.
	UpdateOutbox(ctx context.Context, delivered []Event) error
}

// PendingCounter provides the number of rows still in the outbox.
type PendingCounter interface {
	// PendingCount returns the current number of outbox rows.
	PendingCount(ctx context.Context) (int, error)
}
