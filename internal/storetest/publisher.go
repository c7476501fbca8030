package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"sync"

	"github.com/velmie/txoutbox"
)

// ErrPublish is returned by Publisher for events selected by FailWhen.
var ErrPublish = errors.New("storetest: publish failed")

// Publisher is an in-memory outbox.EventPublisher recording published events.
type Publisher struct {
	// FailWhen makes Publish fail for matching events.
	FailWhen func(event outbox.PreparedEvent) bool
	// PrepareErr is returned by Prepare when set.
	PrepareErr error

	mu        sync.Mutex
	prepared  int
	published []outbox.PreparedEvent
	attempts  int
	flushes   int
}

var _ outbox.EventPublisher = (*Publisher)(nil)

// Prepare JSON-encodes event.
func (p *Publisher) Prepare(_ context.Context, topic string, event any, opts outbox.PublishOptions) (outbox.PreparedEvent, error) {
	p.mu.Lock()
	p.prepared++
	p.mu.Unlock()

	if p.PrepareErr != nil {
		return outbox.PreparedEvent{}, p.PrepareErr
	}

	var data []byte
	switch v := event.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		encoded, err := json.Marshal(event)
		if err != nil {
			return outbox.PreparedEvent{}, err
		}
		data = encoded
	}

	return outbox.PreparedEvent{
		Topic:      topic,
		Data:       data,
		Attributes: maps.Clone(opts.Attributes),
		Key:        opts.Key,
	}, nil
}

// Publish records event or fails when FailWhen matches.
func (p *Publisher) Publish(ctx context.Context, event outbox.PreparedEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.attempts++
	if p.FailWhen != nil && p.FailWhen(event) {
		return ErrPublish
	}
	p.published = append(p.published, event)

	return nil
}

// Flush counts calls.
func (p *Publisher) Flush(context.Context) error {
	p.mu.Lock()
	p.flushes++
	p.mu.Unlock()

	return nil
}

// Published returns a copy of the published events.
func (p *Publisher) Published() []outbox.PreparedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]outbox.PreparedEvent(nil), p.published...)
}

// Attempts returns the number of Publish calls.
func (p *Publisher) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.attempts
}

// Prepared returns the number of Prepare calls.
func (p *Publisher) Prepared() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.prepared
}

// Flushes returns the number of Flush calls.
func (p *Publisher) Flushes() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.flushes
}
