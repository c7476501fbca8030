package sqlite_test

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velmie/txoutbox"
	"github.com/velmie/txoutbox/internal/storetest"
	"github.com/velmie/txoutbox/sqlite"
)

const ordersSchema = `CREATE TABLE IF NOT EXISTS orders (
	id TEXT NOT NULL PRIMARY KEY,
	status TEXT NOT NULL,
	note TEXT NULL,
	updated_at INTEGER NOT NULL
);`

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Store {
		return openStore(t)
	})
}

func TestOpenAppliesPragmas(t *testing.T) {
	store := openStore(t)

	var mode string
	require.NoError(t, store.DB().QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", strings.ToLower(mode))

	var timeout int
	require.NoError(t, store.DB().QueryRow("PRAGMA busy_timeout").Scan(&timeout))
	assert.Equal(t, 5000, timeout)
}

func TestOpenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "outbox.db")

	first, err := sqlite.Open(ctx, path, sqlite.WithTable("events"))
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := sqlite.Open(ctx, path, sqlite.WithTable("events"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })
	assert.Equal(t, "events", second.OutboxTable())
}

func TestOpenValidation(t *testing.T) {
	ctx := context.Background()

	_, err := sqlite.Open(ctx, "")
	require.ErrorIs(t, err, sqlite.ErrPathRequired)

	_, err = sqlite.Open(ctx, filepath.Join(t.TempDir(), "x.db"), sqlite.WithTable("main.outbox"))
	require.ErrorIs(t, err, sqlite.ErrInvalidTableName)

	_, err = sqlite.NewStore(nil)
	require.ErrorIs(t, err, sqlite.ErrDBRequired)
}

func TestSenderRunDrainsExpiredRows(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := openStore(t)
	publisher := &storetest.Publisher{}

	past := time.Now().Add(-time.Hour)
	runner := outbox.NewRunner(store, publisher, nil,
		outbox.WithLeaseClock(outbox.ClockFunc(func() time.Time { return past })),
	)
	for i := range 5 {
		_, err := runner.Execute(ctx, func(ctx context.Context, tx *outbox.Transaction) error {
			id := fmt.Sprintf("o-%d", i)
			if err := tx.Replace(ctx, &storetest.Order{ID: id, Status: "new"}); err != nil {
				return err
			}

			return tx.Publish(ctx, "orders.created", map[string]string{"id": id}, outbox.WithKey(id))
		})
		require.NoError(t, err)
	}

	sender := outbox.NewSender(store, publisher,
		outbox.WithWorkers(2),
		outbox.WithBatchSize(2),
		outbox.WithPollInterval(10*time.Millisecond),
	)
	done := make(chan error, 1)
	go func() { done <- sender.Run(ctx) }()

	require.Eventually(t, func() bool {
		count, err := store.PendingCount(ctx)

		return err == nil && count == 0
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	published := publisher.Published()
	require.Len(t, published, 5)
	keys := make([]string, 0, len(published))
	for _, event := range published {
		keys = append(keys, event.Key)
	}
	assert.ElementsMatch(t, []string{"o-0", "o-1", "o-2", "o-3", "o-4"}, keys)
	assert.Equal(t, 1, publisher.Flushes())
}

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()

	ctx := context.Background()
	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "outbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.DB().ExecContext(ctx, ordersSchema)
	require.NoError(t, err)

	return store
}
