package outbox

import "context"

// EventPublisher turns business events into transport messages and sends them.
type EventPublisher interface {
	// Prepare serializes event into its transport-ready form. It must not perform network I/O.
	Prepare(ctx context.Context, topic string, event any, opts PublishOptions) (PreparedEvent, error)
	// Publish sends a prepared event.
	Publish(ctx context.Context, event PreparedEvent) error
	// Flush waits for internally buffered sends to complete.
	Flush(ctx context.Context) error
}

// EventTransaction collects events that are published only if the enclosing state transaction commits.
type EventTransaction interface {
	// Publish stages an event for topic.
	Publish(ctx context.Context, topic string, event any, opts ...PublishOption) error
}
