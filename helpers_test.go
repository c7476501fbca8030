package outbox_test

import (
	"context"
	"sync"
	"time"

	"github.com/velmie/txoutbox"
	"github.com/velmie/txoutbox/internal/storetest"
	"github.com/velmie/txoutbox/memory"
)

type recordingMetrics struct {
	mu        sync.Mutex
	batches   int
	claimed   int
	published int
	failed    int
	pending   []int
}

func (m *recordingMetrics) ObserveBatchDuration(time.Duration) {
	m.mu.Lock()
	m.batches++
	m.mu.Unlock()
}

func (m *recordingMetrics) AddClaimed(n int) {
	m.mu.Lock()
	m.claimed += n
	m.mu.Unlock()
}

func (m *recordingMetrics) AddPublished(n int) {
	m.mu.Lock()
	m.published += n
	m.mu.Unlock()
}

func (m *recordingMetrics) AddFailed(n int) {
	m.mu.Lock()
	m.failed += n
	m.mu.Unlock()
}

func (m *recordingMetrics) SetPending(n int) {
	m.mu.Lock()
	m.pending = append(m.pending, n)
	m.mu.Unlock()
}

func (m *recordingMetrics) snapshot() recordingMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	return recordingMetrics{
		batches:   m.batches,
		claimed:   m.claimed,
		published: m.published,
		failed:    m.failed,
		pending:   append([]int(nil), m.pending...),
	}
}

// blockingPublisher blocks every publish until its context ends.
type blockingPublisher struct {
	storetest.Publisher
}

func (p *blockingPublisher) Publish(ctx context.Context, _ outbox.PreparedEvent) error {
	<-ctx.Done()

	return ctx.Err()
}

// panickingPublisher panics for one topic.
type panickingPublisher struct {
	storetest.Publisher
	topic string
}

func (p *panickingPublisher) Publish(ctx context.Context, event outbox.PreparedEvent) error {
	if event.Topic == p.topic {
		panic("publisher exploded")
	}

	return p.Publisher.Publish(ctx, event)
}

// cancellingPublisher cancels its context after the first successful publish.
type cancellingPublisher struct {
	storetest.Publisher
	cancel context.CancelFunc
}

func (p *cancellingPublisher) Publish(ctx context.Context, event outbox.PreparedEvent) error {
	err := p.Publisher.Publish(ctx, event)
	p.cancel()

	return err
}

// faultyStore injects failures into a memory store.
type faultyStore struct {
	*memory.Store
	replaceErr error
	updateErr  error
	commitErr  error
	fetchPanic bool
}

func (s *faultyStore) RunStateTransaction(
	ctx context.Context,
	fn func(ctx context.Context, state outbox.StateTransaction) error,
) error {
	return s.Store.RunStateTransaction(ctx, func(ctx context.Context, state outbox.StateTransaction) error {
		if err := fn(ctx, &faultyState{StateTransaction: state, err: s.replaceErr}); err != nil {
			return err
		}

		return s.commitErr
	})
}

func (s *faultyStore) UpdateOutbox(ctx context.Context, delivered []outbox.Event) error {
	if s.updateErr != nil {
		return s.updateErr
	}

	return s.Store.UpdateOutbox(ctx, delivered)
}

func (s *faultyStore) FetchEvents(ctx context.Context, opts outbox.FetchOptions) ([]outbox.Event, error) {
	if s.fetchPanic {
		panic("fetch exploded")
	}

	return s.Store.FetchEvents(ctx, opts)
}

type faultyState struct {
	outbox.StateTransaction
	err error
}

func (s *faultyState) Replace(ctx context.Context, entity outbox.Entity) error {
	if s.err != nil && entity.EntityName() == outbox.EventEntityName {
		return s.err
	}

	return s.StateTransaction.Replace(ctx, entity)
}

// stepClock returns start, then advances by step on every call.
type stepClock struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.next
	c.next = c.next.Add(c.step)

	return now
}

func fixedClock(t time.Time) outbox.Clock {
	return outbox.ClockFunc(func() time.Time { return t })
}

// seedEvents writes count rows whose lease expired an hour ago.
func seedEvents(ctx context.Context, store outbox.StateStore, count int, topic string) ([]outbox.Event, error) {
	runner := outbox.NewRunner(store, &storetest.Publisher{}, nil,
		outbox.WithLeaseClock(fixedClock(time.Now().Add(-time.Hour))),
	)
	commit, err := runner.Execute(ctx, func(ctx context.Context, tx *outbox.Transaction) error {
		for range count {
			if err := tx.Publish(ctx, topic, "payload"); err != nil {
				return err
			}
		}

		return nil
	})

	return commit.Events, err
}
