package outbox_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velmie/txoutbox"
	"github.com/velmie/txoutbox/internal/storetest"
	"github.com/velmie/txoutbox/memory"
)

func TestRunnerCommitsStateAndEvents(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	publisher := &storetest.Publisher{}
	leaseBase := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	runner := outbox.NewRunner(store, publisher, nil,
		outbox.WithLeaseClock(fixedClock(leaseBase)),
		outbox.WithRunnerLeaseDuration(time.Minute),
	)

	commit, err := runner.Execute(ctx, func(ctx context.Context, tx *outbox.Transaction) error {
		if err := tx.Replace(ctx, &storetest.Order{ID: "o-1", Status: "new"}); err != nil {
			return err
		}
		if err := tx.Publish(ctx, "orders.created", "first"); err != nil {
			return err
		}

		return tx.Events().Publish(ctx, "orders.created", "second")
	})
	require.NoError(t, err)

	require.Len(t, commit.Events, 2)
	assert.Equal(t, 1, commit.Attempts)
	assert.NotEqual(t, commit.Events[0].ID, commit.Events[1].ID)
	assert.Equal(t, []byte(`"first"`), commit.Events[0].Data)
	assert.Equal(t, []byte(`"second"`), commit.Events[1].Data)
	for _, event := range commit.Events {
		require.NotNil(t, event.LeaseExpiration)
		assert.Equal(t, leaseBase.Add(time.Minute), *event.LeaseExpiration)
	}

	assert.Equal(t, 1, store.Len(storetest.OrderEntity))
	assert.Len(t, store.Events(), 2)
	assert.Zero(t, publisher.Attempts())
}

func TestRunnerWithoutEventsWritesNoRows(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	runner := outbox.NewRunner(store, &storetest.Publisher{}, nil)

	commit, err := runner.Execute(ctx, func(ctx context.Context, tx *outbox.Transaction) error {
		return tx.Replace(ctx, &storetest.Order{ID: "o-1", Status: "new"})
	})
	require.NoError(t, err)
	assert.Empty(t, commit.Events)
	assert.Zero(t, store.Len(outbox.EventEntityName))
}

func TestRunnerAbortDiscardsStagedEvents(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	publisher := &storetest.Publisher{}
	runner := outbox.NewRunner(store, publisher, outbox.NewSender(store, publisher))

	_, err := runner.Execute(ctx, func(ctx context.Context, tx *outbox.Transaction) error {
		if err := tx.Replace(ctx, &storetest.Order{ID: "o-1", Status: "new"}); err != nil {
			return err
		}
		if err := tx.Publish(ctx, "orders.created", "x"); err != nil {
			return err
		}

		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)
	runner.Wait()

	assert.Zero(t, store.Len(storetest.OrderEntity))
	assert.Zero(t, store.Len(outbox.EventEntityName))
	assert.Zero(t, publisher.Attempts())
}

func TestRunnerEventWriteFailureAbortsEverything(t *testing.T) {
	ctx := context.Background()
	store := &faultyStore{Store: memory.NewStore(), replaceErr: assert.AnError}
	publisher := &storetest.Publisher{}
	runner := outbox.NewRunner(store, publisher, outbox.NewSender(store, publisher))

	_, err := runner.Execute(ctx, func(ctx context.Context, tx *outbox.Transaction) error {
		if err := tx.Replace(ctx, &storetest.Order{ID: "o-1", Status: "new"}); err != nil {
			return err
		}

		return tx.Publish(ctx, "orders.created", "x")
	})
	require.ErrorIs(t, err, assert.AnError)
	runner.Wait()

	assert.Zero(t, store.Len(storetest.OrderEntity))
	assert.Zero(t, store.Len(outbox.EventEntityName))
	assert.Zero(t, publisher.Attempts())
}

func TestRunnerCommitFailureAfterEventsWritten(t *testing.T) {
	ctx := context.Background()
	store := &faultyStore{Store: memory.NewStore(), commitErr: assert.AnError}
	publisher := &storetest.Publisher{}
	runner := outbox.NewRunner(store, publisher, outbox.NewSender(store, publisher))

	_, err := runner.Execute(ctx, func(ctx context.Context, tx *outbox.Transaction) error {
		if err := tx.Replace(ctx, &storetest.Order{ID: "o-1", Status: "new"}); err != nil {
			return err
		}

		return tx.Publish(ctx, "orders.created", "x")
	})
	require.ErrorIs(t, err, assert.AnError)
	runner.Wait()

	assert.Zero(t, store.Len(storetest.OrderEntity))
	assert.Zero(t, store.Len(outbox.EventEntityName))
	assert.Zero(t, publisher.Attempts())
}

func TestRunnerRetriesOldTimestamp(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	base := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := &stepClock{next: base, step: 2 * time.Millisecond}
	runner := outbox.NewRunner(store, &storetest.Publisher{}, nil,
		outbox.WithRunnerClock(clock),
		outbox.WithRetryBackoff(time.Microsecond, time.Microsecond),
	)

	lastUpdate := base.Add(time.Millisecond)
	var timestamps []time.Time
	commit, err := runner.Execute(ctx, func(ctx context.Context, tx *outbox.Transaction) error {
		timestamps = append(timestamps, tx.Timestamp())
		if err := tx.ValidatePastDateOrFail(lastUpdate); err != nil {
			return err
		}

		return tx.Publish(ctx, "orders.updated", "x")
	})
	require.NoError(t, err)
	assert.Equal(t, 2, commit.Attempts)
	assert.Equal(t, []time.Time{base, base.Add(2 * time.Millisecond)}, timestamps)
	assert.Equal(t, timestamps[1], commit.Timestamp)
	assert.Len(t, store.Events(), 1)
}

func TestRunnerRetriesConflicts(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	runner := outbox.NewRunner(store, &storetest.Publisher{}, nil,
		outbox.WithRetryBackoff(time.Microsecond, time.Microsecond),
	)

	var attempts atomic.Int32
	commit, err := runner.Execute(ctx, func(ctx context.Context, tx *outbox.Transaction) error {
		order := &storetest.Order{ID: "o-1"}
		if _, err := tx.FindOneWithSameKeyAs(ctx, order); err != nil {
			return err
		}
		if attempts.Add(1) == 1 {
			err := store.RunStateTransaction(ctx, func(ctx context.Context, state outbox.StateTransaction) error {
				return state.Replace(ctx, &storetest.Order{ID: "o-1", Status: "cancelled"})
			})
			require.NoError(t, err)
		}
		order.Status += "+seen"

		if err := tx.Replace(ctx, order); err != nil {
			return err
		}

		return tx.Publish(ctx, "orders.updated", order.Status)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, commit.Attempts)
	require.Len(t, store.Events(), 1)
	assert.Equal(t, []byte(`"cancelled+seen"`), store.Events()[0].Data)
}

func TestRunnerStopsOnNonRetryableError(t *testing.T) {
	runner := outbox.NewRunner(memory.NewStore(), &storetest.Publisher{}, nil)

	calls := 0
	_, err := runner.Execute(context.Background(), func(context.Context, *outbox.Transaction) error {
		calls++

		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, calls)
}

func TestRunnerGivesUpAfterMaxAttempts(t *testing.T) {
	runner := outbox.NewRunner(memory.NewStore(), &storetest.Publisher{}, nil,
		outbox.WithMaxAttempts(3),
		outbox.WithRetryBackoff(time.Microsecond, time.Microsecond),
	)

	calls := 0
	_, err := runner.Execute(context.Background(), func(_ context.Context, tx *outbox.Transaction) error {
		calls++

		return tx.ValidatePastDateOrFail(tx.Timestamp().Add(time.Hour))
	})
	require.ErrorIs(t, err, outbox.ErrTransactionOldTimestamp)
	assert.Equal(t, 3, calls)
}

func TestRunnerStopsRetryingWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := outbox.NewRunner(memory.NewStore(), &storetest.Publisher{}, nil,
		outbox.WithRetryBackoff(time.Hour, time.Hour),
	)

	time.AfterFunc(20*time.Millisecond, cancel)
	_, err := runner.Execute(ctx, func(context.Context, *outbox.Transaction) error {
		return outbox.Retryable(assert.AnError)
	})
	require.ErrorIs(t, err, assert.AnError)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunReturnsResult(t *testing.T) {
	ctx := context.Background()
	runner := outbox.NewRunner(memory.NewStore(), &storetest.Publisher{}, nil)

	status, err := outbox.Run(ctx, runner, func(ctx context.Context, tx *outbox.Transaction) (string, error) {
		order := &storetest.Order{ID: "o-1", Status: "new"}
		if err := tx.Replace(ctx, order); err != nil {
			return "", err
		}

		return order.Status, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "new", status)

	status, err = outbox.Run(ctx, runner, func(context.Context, *outbox.Transaction) (string, error) {
		return "ignored", assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)
	assert.Empty(t, status)
}

func TestRunnerDispatchesAfterCommit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := memory.NewStore()
	publisher := &storetest.Publisher{}
	sender := outbox.NewSender(store, publisher, outbox.WithLeaseDuration(time.Hour))
	runner := outbox.NewRunner(store, publisher, sender)

	commit, err := runner.Execute(ctx, func(ctx context.Context, tx *outbox.Transaction) error {
		if err := tx.Publish(ctx, "orders.created", "a", outbox.WithKey("o-1")); err != nil {
			return err
		}

		return tx.Publish(ctx, "orders.created", "b", outbox.WithKey("o-2"))
	})
	require.NoError(t, err)
	cancel()
	runner.Wait()

	require.Len(t, publisher.Published(), 2)
	assert.Equal(t, commit.Events[0].ID, findPublished(t, publisher, "o-1").ID)
	assert.Zero(t, store.Len(outbox.EventEntityName))

	lease := *commit.Events[0].LeaseExpiration
	assert.WithinDuration(t, time.Now().Add(time.Hour), lease, time.Minute)
}

func TestNewRunnerPanicsOnNil(t *testing.T) {
	require.Panics(t, func() { outbox.NewRunner(nil, &storetest.Publisher{}, nil) })
	require.Panics(t, func() { outbox.NewRunner(memory.NewStore(), nil, nil) })

	runner := outbox.NewRunner(memory.NewStore(), &storetest.Publisher{}, nil)
	require.Panics(t, func() { _, _ = runner.Execute(context.Background(), nil) })
}

func findPublished(t *testing.T, publisher *storetest.Publisher, key string) outbox.PreparedEvent {
	t.Helper()

	for _, event := range publisher.Published() {
		if event.Key == key {
			return event
		}
	}
	t.Fatalf("no event published with key %q", key)

	return outbox.PreparedEvent{}
}
