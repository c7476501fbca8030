package outbox

import (
	"context"
	"fmt"
	"sync"
)

// Staging is the outbox EventTransaction: it prepares events and keeps them in memory,
// in call order, until the runner writes them as outbox rows. It never publishes.
type Staging struct {
	publisher EventPublisher
	ids       IDGenerator

	mu     sync.Mutex
	events []Event
}

var _ EventTransaction = (*Staging)(nil)

// NewStaging creates an empty staging transaction bound to publisher.
func NewStaging(publisher EventPublisher, ids IDGenerator) *Staging {
	if publisher == nil {
		panic("outbox: nil EventPublisher")
	}
	if ids == nil {
		ids = RandomIDGenerator{}
	}

	return &Staging{publisher: publisher, ids: ids}
}

// Publish prepares event and stages it under a fresh ID.
func (s *Staging) Publish(ctx context.Context, topic string, event any, opts ...PublishOption) error {
	prepared, err := s.publisher.Prepare(ctx, topic, event, NewPublishOptions(opts...))
	if err != nil {
		return err
	}
	if prepared.Topic == "" {
		return ErrTopicRequired
	}

	id, err := s.ids.New()
	if err != nil {
		return fmt.Errorf("outbox: generate event id: %w", err)
	}
	prepared.ID = id

	s.mu.Lock()
	s.events = append(s.events, Event{PreparedEvent: prepared})
	s.mu.Unlock()

	return nil
}

// Events returns a copy of the staged events in call order.
func (s *Staging) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Event, len(s.events))
	copy(out, s.events)

	return out
}

// Len returns the number of staged events.
func (s *Staging) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.events)
}
