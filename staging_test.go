package outbox_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velmie/txoutbox"
	"github.com/velmie/txoutbox/internal/storetest"
)

func TestStagingKeepsCallOrder(t *testing.T) {
	ctx := context.Background()
	publisher := &storetest.Publisher{}
	staging := outbox.NewStaging(publisher, nil)

	require.NoError(t, staging.Publish(ctx, "a", map[string]int{"n": 1}, outbox.WithKey("k")))
	require.NoError(t, staging.Publish(ctx, "b", []byte("raw"), outbox.WithAttribute("x", "y")))

	events := staging.Events()
	require.Len(t, events, 2)
	assert.Equal(t, 2, staging.Len())
	assert.Equal(t, "a", events[0].Topic)
	assert.Equal(t, []byte(`{"n":1}`), events[0].Data)
	assert.Equal(t, "k", events[0].Key)
	assert.Equal(t, "b", events[1].Topic)
	assert.Equal(t, map[string]string{"x": "y"}, events[1].Attributes)
	assert.NotEqual(t, uuid.Nil, events[0].ID)
	assert.NotEqual(t, events[0].ID, events[1].ID)
	assert.Nil(t, events[0].LeaseExpiration)
	assert.Zero(t, publisher.Attempts())
}

func TestStagingEventsReturnsCopy(t *testing.T) {
	staging := outbox.NewStaging(&storetest.Publisher{}, nil)
	require.NoError(t, staging.Publish(context.Background(), "a", "x"))

	events := staging.Events()
	events[0].Topic = "changed"

	assert.Equal(t, "a", staging.Events()[0].Topic)
}

func TestStagingErrors(t *testing.T) {
	ctx := context.Background()

	staging := outbox.NewStaging(&storetest.Publisher{}, nil)
	require.ErrorIs(t, staging.Publish(ctx, "", "x"), outbox.ErrTopicRequired)

	failing := outbox.NewStaging(&storetest.Publisher{PrepareErr: assert.AnError}, nil)
	require.ErrorIs(t, failing.Publish(ctx, "a", "x"), assert.AnError)

	idErr := errors.New("entropy exhausted")
	noIDs := outbox.NewStaging(&storetest.Publisher{}, outbox.IDGeneratorFunc(func() (uuid.UUID, error) {
		return uuid.Nil, idErr
	}))
	require.ErrorIs(t, noIDs.Publish(ctx, "a", "x"), idErr)
	assert.Zero(t, noIDs.Len())

	require.Panics(t, func() { outbox.NewStaging(nil, nil) })
}
