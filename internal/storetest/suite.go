package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velmie/txoutbox"
)

// Store is the storage surface exercised by Run.
type Store interface {
	outbox.StateStore
	outbox.OutboxStore
	outbox.PendingCounter
}

// Factory returns an empty store with the outbox and orders tables in place.
type Factory func(t *testing.T) Store

// Run executes the store contract suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("ReplaceFindDelete", func(t *testing.T) { testReplaceFindDelete(t, newStore(t)) })
	t.Run("ReplaceOverwritesValues", func(t *testing.T) { testReplaceOverwritesValues(t, newStore(t)) })
	t.Run("RollbackOnError", func(t *testing.T) { testRollbackOnError(t, newStore(t)) })
	t.Run("RollbackOnPanic", func(t *testing.T) { testRollbackOnPanic(t, newStore(t)) })
	t.Run("RunnerWritesEventsWithState", func(t *testing.T) { testRunnerWritesEventsWithState(t, newStore(t)) })
	t.Run("RunnerAbortLeavesNothing", func(t *testing.T) { testRunnerAbortLeavesNothing(t, newStore(t)) })
	t.Run("CommitFailureLeavesNothing", func(t *testing.T) { testCommitFailureLeavesNothing(t, newStore(t)) })
	t.Run("FetchEventsClaimsExpiredLeases", func(t *testing.T) { testFetchEventsClaimsExpired(t, newStore(t)) })
	t.Run("FetchEventsSkipsActiveLeases", func(t *testing.T) { testFetchEventsSkipsActive(t, newStore(t)) })
	t.Run("ConcurrentClaimsAreDisjoint", func(t *testing.T) { testConcurrentClaims(t, newStore(t)) })
	t.Run("SenderDeliversAfterCommit", func(t *testing.T) { testSenderDelivers(t, newStore(t)) })
	t.Run("SenderKeepsFailedRows", func(t *testing.T) { testSenderKeepsFailed(t, newStore(t)) })
	t.Run("UpdateOutboxIgnoresMissingRows", func(t *testing.T) { testUpdateOutboxMissing(t, newStore(t)) })
}

func testReplaceFindDelete(t *testing.T, store Store) {
	ctx := context.Background()
	note := "gift wrap"

	err := store.RunStateTransaction(ctx, func(ctx context.Context, state outbox.StateTransaction) error {
		return state.Replace(ctx, &Order{ID: "o-1", Status: "new", Note: &note, UpdatedAt: 10})
	})
	require.NoError(t, err)

	found := findOrder(t, store, "o-1")
	require.NotNil(t, found)
	assert.Equal(t, "new", found.Status)
	require.NotNil(t, found.Note)
	assert.Equal(t, note, *found.Note)
	assert.Equal(t, int64(10), found.UpdatedAt)

	err = store.RunStateTransaction(ctx, func(ctx context.Context, state outbox.StateTransaction) error {
		return state.DeleteWithSameKeyAs(ctx, &Order{ID: "o-1"})
	})
	require.NoError(t, err)
	assert.Nil(t, findOrder(t, store, "o-1"))

	err = store.RunStateTransaction(ctx, func(ctx context.Context, state outbox.StateTransaction) error {
		return state.DeleteWithSameKeyAs(ctx, &Order{ID: "missing"})
	})
	require.NoError(t, err)
}

func testReplaceOverwritesValues(t *testing.T, store Store) {
	ctx := context.Background()
	note := "first"

	err := store.RunStateTransaction(ctx, func(ctx context.Context, state outbox.StateTransaction) error {
		return state.Replace(ctx, &Order{ID: "o-1", Status: "new", Note: &note, UpdatedAt: 1})
	})
	require.NoError(t, err)

	err = store.RunStateTransaction(ctx, func(ctx context.Context, state outbox.StateTransaction) error {
		if err := state.Replace(ctx, &Order{ID: "o-1", Status: "paid", UpdatedAt: 2}); err != nil {
			return err
		}

		var inTx Order
		inTx.ID = "o-1"
		ok, err := state.FindOneWithSameKeyAs(ctx, &inTx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "paid", inTx.Status)

		return nil
	})
	require.NoError(t, err)

	found := findOrder(t, store, "o-1")
	require.NotNil(t, found)
	assert.Equal(t, "paid", found.Status)
	assert.Nil(t, found.Note)
	assert.Equal(t, int64(2), found.UpdatedAt)
}

func testRollbackOnError(t *testing.T, store Store) {
	ctx := context.Background()

	err := store.RunStateTransaction(ctx, func(ctx context.Context, state outbox.StateTransaction) error {
		if err := state.Replace(ctx, &Order{ID: "o-1", Status: "new"}); err != nil {
			return err
		}

		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)
	assert.Nil(t, findOrder(t, store, "o-1"))
}

func testRollbackOnPanic(t *testing.T, store Store) {
	ctx := context.Background()

	require.Panics(t, func() {
		_ = store.RunStateTransaction(ctx, func(ctx context.Context, state outbox.StateTransaction) error {
			if err := state.Replace(ctx, &Order{ID: "o-1", Status: "new"}); err != nil {
				return err
			}
			panic("boom")
		})
	})
	assert.Nil(t, findOrder(t, store, "o-1"))
}

func testRunnerWritesEventsWithState(t *testing.T, store Store) {
	ctx := context.Background()
	publisher := &Publisher{}
	runner := outbox.NewRunner(store, publisher, nil, outbox.WithRunnerLeaseDuration(time.Minute))

	commit, err := runner.Execute(ctx, func(ctx context.Context, tx *outbox.Transaction) error {
		if err := tx.Replace(ctx, &Order{ID: "o-1", Status: "new"}); err != nil {
			return err
		}
		if err := tx.Publish(ctx, "orders.created", map[string]string{"id": "o-1"}, outbox.WithKey("o-1")); err != nil {
			return err
		}

		return tx.Publish(ctx, "orders.audit", []byte("raw"), outbox.WithAttribute("source", "test"))
	})
	require.NoError(t, err)
	require.Len(t, commit.Events, 2)
	assert.Equal(t, 1, commit.Attempts)
	assert.NotEqual(t, commit.Events[0].ID, commit.Events[1].ID)
	require.NotNil(t, commit.Events[0].LeaseExpiration)
	require.NotNil(t, commit.Events[1].LeaseExpiration)
	assert.True(t, commit.Events[0].LeaseExpiration.Equal(*commit.Events[1].LeaseExpiration))
	assert.Zero(t, publisher.Attempts())

	require.NotNil(t, findOrder(t, store, "o-1"))
	assertPending(t, store, 2)

	for _, written := range commit.Events {
		stored := findEvent(t, store, written.ID)
		require.NotNil(t, stored)
		assert.Equal(t, written.Topic, stored.Topic)
		assert.Equal(t, written.Data, stored.Data)
		assert.Equal(t, written.Key, stored.Key)
		assert.Equal(t, len(written.Attributes), len(stored.Attributes))
		require.NotNil(t, stored.LeaseExpiration)
		assert.Equal(t, written.LeaseExpiration.UnixMilli(), stored.LeaseExpiration.UnixMilli())
	}
}

func testRunnerAbortLeavesNothing(t *testing.T, store Store) {
	ctx := context.Background()
	publisher := &Publisher{}
	sender := outbox.NewSender(store, publisher)
	runner := outbox.NewRunner(store, publisher, sender, outbox.WithMaxAttempts(1))

	_, err := runner.Execute(ctx, func(ctx context.Context, tx *outbox.Transaction) error {
		if err := tx.Replace(ctx, &Order{ID: "o-1", Status: "new"}); err != nil {
			return err
		}
		if err := tx.Publish(ctx, "orders.created", "payload"); err != nil {
			return err
		}

		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)
	runner.Wait()

	assert.Nil(t, findOrder(t, store, "o-1"))
	assertPending(t, store, 0)
	assert.Zero(t, publisher.Attempts())
}

// failingCommit fails every transaction after its callback has written all rows.
type failingCommit struct {
	Store
}

func (s failingCommit) RunStateTransaction(
	ctx context.Context,
	fn func(ctx context.Context, state outbox.StateTransaction) error,
) error {
	return s.Store.RunStateTransaction(ctx, func(ctx context.Context, state outbox.StateTransaction) error {
		if err := fn(ctx, state); err != nil {
			return err
		}

		return assert.AnError
	})
}

func testCommitFailureLeavesNothing(t *testing.T, store Store) {
	ctx := context.Background()
	publisher := &Publisher{}
	failing := failingCommit{Store: store}
	runner := outbox.NewRunner(failing, publisher, outbox.NewSender(store, publisher), outbox.WithMaxAttempts(1))

	_, err := runner.Execute(ctx, func(ctx context.Context, tx *outbox.Transaction) error {
		if err := tx.Replace(ctx, &Order{ID: "o-1", Status: "new"}); err != nil {
			return err
		}

		return tx.Publish(ctx, "orders.created", "payload")
	})
	require.ErrorIs(t, err, assert.AnError)
	runner.Wait()

	assert.Nil(t, findOrder(t, store, "o-1"))
	assertPending(t, store, 0)
	assert.Zero(t, publisher.Attempts())
}

func testFetchEventsClaimsExpired(t *testing.T, store Store) {
	ctx := context.Background()
	now := time.Now().UTC()
	ids := writeEvents(t, store, 3, now.Add(-time.Hour))

	claimLease := now.Add(time.Minute)
	opts := outbox.FetchOptions{BatchSize: 2, Now: now, LeaseExpiration: claimLease}

	first, err := store.FetchEvents(ctx, opts)
	require.NoError(t, err)
	require.Len(t, first, 2)
	for _, event := range first {
		require.NotNil(t, event.LeaseExpiration)
		assert.Equal(t, claimLease.UnixMilli(), event.LeaseExpiration.UnixMilli())
	}

	second, err := store.FetchEvents(ctx, opts)
	require.NoError(t, err)
	require.Len(t, second, 1)

	third, err := store.FetchEvents(ctx, opts)
	require.NoError(t, err)
	assert.Empty(t, third)

	claimed := append(first, second...)
	assert.ElementsMatch(t, ids, eventIDs(claimed))

	stored := findEvent(t, store, claimed[0].ID)
	require.NotNil(t, stored)
	require.NotNil(t, stored.LeaseExpiration)
	assert.Equal(t, claimLease.UnixMilli(), stored.LeaseExpiration.UnixMilli())

	require.NoError(t, store.UpdateOutbox(ctx, claimed))
	assertPending(t, store, 0)
}

func testFetchEventsSkipsActive(t *testing.T, store Store) {
	ctx := context.Background()
	now := time.Now().UTC()
	writeEvents(t, store, 2, now)

	events, err := store.FetchEvents(ctx, outbox.FetchOptions{
		BatchSize:       10,
		Now:             now,
		LeaseExpiration: now.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = store.FetchEvents(ctx, outbox.FetchOptions{BatchSize: 0, Now: now})
	require.ErrorIs(t, err, outbox.ErrInvalidBatchSize)
}

func testConcurrentClaims(t *testing.T, store Store) {
	const (
		total    = 20
		claimers = 4
	)

	ctx := context.Background()
	now := time.Now().UTC()
	ids := writeEvents(t, store, total, now.Add(-time.Hour))

	var (
		mu      sync.Mutex
		claimed []uuid.UUID
		wg      sync.WaitGroup
	)
	for range claimers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				events, err := store.FetchEvents(ctx, outbox.FetchOptions{
					BatchSize:       5,
					Now:             now,
					LeaseExpiration: now.Add(time.Minute),
				})
				if err != nil {
					if outbox.IsRetryable(err) {
						continue
					}
					assert.NoError(t, err)

					return
				}
				if len(events) == 0 {
					return
				}

				mu.Lock()
				claimed = append(claimed, eventIDs(events)...)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, claimed, total)
	assert.ElementsMatch(t, ids, claimed)
}

func testSenderDelivers(t *testing.T, store Store) {
	ctx := context.Background()
	publisher := &Publisher{}
	sender := outbox.NewSender(store, publisher)
	runner := outbox.NewRunner(store, publisher, sender)

	commit, err := runner.Execute(ctx, func(ctx context.Context, tx *outbox.Transaction) error {
		if err := tx.Publish(ctx, "orders.created", "a"); err != nil {
			return err
		}

		return tx.Publish(ctx, "orders.created", "b")
	})
	require.NoError(t, err)
	runner.Wait()

	published := publisher.Published()
	require.Len(t, published, 2)
	assert.ElementsMatch(t, eventIDs(commit.Events), preparedIDs(published))
	assertPending(t, store, 0)
}

func testSenderKeepsFailed(t *testing.T, store Store) {
	ctx := context.Background()
	publisher := &Publisher{FailWhen: func(event outbox.PreparedEvent) bool {
		return event.Topic == "orders.rejected"
	}}
	sender := outbox.NewSender(store, publisher)
	runner := outbox.NewRunner(store, publisher, sender)

	commit, err := runner.Execute(ctx, func(ctx context.Context, tx *outbox.Transaction) error {
		if err := tx.Publish(ctx, "orders.created", "ok"); err != nil {
			return err
		}

		return tx.Publish(ctx, "orders.rejected", "fails")
	})
	require.NoError(t, err)
	runner.Wait()

	assert.Len(t, publisher.Published(), 1)
	assertPending(t, store, 1)

	var failedID uuid.UUID
	for _, event := range commit.Events {
		if event.Topic == "orders.rejected" {
			failedID = event.ID
		}
	}
	assert.NotNil(t, findEvent(t, store, failedID))

	now := time.Now().UTC()
	events, err := store.FetchEvents(ctx, outbox.FetchOptions{BatchSize: 10, Now: now, LeaseExpiration: now.Add(time.Minute)})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func testUpdateOutboxMissing(t *testing.T, store Store) {
	ctx := context.Background()

	missing := outbox.Event{PreparedEvent: outbox.PreparedEvent{ID: uuid.New(), Topic: "gone"}}
	require.NoError(t, store.UpdateOutbox(ctx, []outbox.Event{missing}))
	require.NoError(t, store.UpdateOutbox(ctx, nil))
}

// writeEvents commits count events whose lease is computed from leaseBase.
func writeEvents(t *testing.T, store Store, count int, leaseBase time.Time) []uuid.UUID {
	t.Helper()

	runner := outbox.NewRunner(store, &Publisher{}, nil,
		outbox.WithLeaseClock(outbox.ClockFunc(func() time.Time { return leaseBase })),
		outbox.WithRunnerLeaseDuration(time.Second),
	)
	commit, err := runner.Execute(context.Background(), func(ctx context.Context, tx *outbox.Transaction) error {
		for range count {
			if err := tx.Publish(ctx, "orders.created", "payload"); err != nil {
				return err
			}
		}

		return nil
	})
	require.NoError(t, err)
	require.Len(t, commit.Events, count)

	return eventIDs(commit.Events)
}

func findOrder(t *testing.T, store Store, id string) *Order {
	t.Helper()

	order := &Order{ID: id}
	var found bool
	err := store.RunStateTransaction(context.Background(), func(ctx context.Context, state outbox.StateTransaction) error {
		var err error
		found, err = state.FindOneWithSameKeyAs(ctx, order)

		return err
	})
	require.NoError(t, err)
	if !found {
		return nil
	}

	return order
}

func findEvent(t *testing.T, store Store, id uuid.UUID) *outbox.Event {
	t.Helper()

	event := &outbox.Event{PreparedEvent: outbox.PreparedEvent{ID: id}}
	var found bool
	err := store.RunStateTransaction(context.Background(), func(ctx context.Context, state outbox.StateTransaction) error {
		var err error
		found, err = state.FindOneWithSameKeyAs(ctx, event)

		return err
	})
	require.NoError(t, err)
	if !found {
		return nil
	}

	return event
}

func assertPending(t *testing.T, store Store, want int) {
	t.Helper()

	count, err := store.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, count)
}

func eventIDs(events []outbox.Event) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(events))
	for _, event := range events {
		ids = append(ids, event.ID)
	}

	return ids
}

func preparedIDs(events []outbox.PreparedEvent) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(events))
	for _, event := range events {
		ids = append(ids, event.ID)
	}

	return ids
}
