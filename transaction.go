package outbox

import (
	"context"
	"time"
)

// Transaction groups a fixed timestamp with the state and event transactions of one attempt.
// Business logic must compare dates against Timestamp, never the wall clock.
type Transaction struct {
	timestamp time.Time
	state     StateTransaction
	events    EventTransaction
}

// NewTransaction binds a timestamp to a state and an event transaction.
func NewTransaction(timestamp time.Time, state StateTransaction, events EventTransaction) *Transaction {
	return &Transaction{timestamp: timestamp, state: state, events: events}
}

// Timestamp is "now" for every consistency check inside the transaction.
func (t *Transaction) Timestamp() time.Time {
	return t.timestamp
}

// State returns the storage transaction.
func (t *Transaction) State() StateTransaction {
	return t.state
}

// Events returns the event transaction.
func (t *Transaction) Events() EventTransaction {
	return t.events
}

// ValidatePastDateOrFail checks that date is strictly before the transaction timestamp.
// A zero date is accepted. Equal or later dates fail with *TransactionOldTimestampError.
func (t *Transaction) ValidatePastDateOrFail(date time.Time) error {
	if date.IsZero() || date.Before(t.timestamp) {
		return nil
	}

	return &TransactionOldTimestampError{
		Timestamp: t.timestamp,
		Delay:     date.Sub(t.timestamp),
	}
}

// Publish stages an event through the event transaction.
func (t *Transaction) Publish(ctx context.Context, topic string, event any, opts ...PublishOption) error {
	return t.events.Publish(ctx, topic, event, opts...)
}

// Replace upserts entity through the state transaction.
func (t *Transaction) Replace(ctx context.Context, entity Entity) error {
	return t.state.Replace(ctx, entity)
}

// DeleteWithSameKeyAs deletes through the state transaction.
func (t *Transaction) DeleteWithSameKeyAs(ctx context.Context, template Entity) error {
	return t.state.DeleteWithSameKeyAs(ctx, template)
}

// FindOneWithSameKeyAs reads through the state transaction.
func (t *Transaction) FindOneWithSameKeyAs(ctx context.Context, dst Entity) (bool, error) {
	return t.state.FindOneWithSameKeyAs(ctx, dst)
}
