package outbox

import (
	"context"

	"github.com/google/uuid"
)

// Failure captures a publish error for an event.
type Failure struct {
	ID  uuid.UUID
	Err error
}

// FailureHandler is called when publishing an event fails.
type FailureHandler func(ctx context.Context, event Event, err error)

// PublishReport is the per-event outcome of Sender.Publish.
type PublishReport struct {
	// Delivered holds events the publisher accepted.
	Delivered []Event
	// Failed holds events left in the outbox until their lease expires.
	Failed []Failure
}
