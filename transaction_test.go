package outbox

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePastDateOrFail(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tx := NewTransaction(ts, nil, nil)

	tests := []struct {
		name  string
		date  time.Time
		delay time.Duration
		fails bool
	}{
		{name: "before", date: ts.Add(-time.Nanosecond)},
		{name: "zero", date: time.Time{}},
		{name: "equal", date: ts, fails: true},
		{name: "after", date: ts.Add(1500 * time.Millisecond), delay: 1500 * time.Millisecond, fails: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tx.ValidatePastDateOrFail(tt.date)
			if !tt.fails {
				require.NoError(t, err)

				return
			}

			var oldErr *TransactionOldTimestampError
			require.True(t, errors.As(err, &oldErr))
			assert.Equal(t, ts, oldErr.Timestamp)
			assert.Equal(t, tt.delay, oldErr.Delay)
			assert.ErrorIs(t, err, ErrTransactionOldTimestamp)
			assert.True(t, IsRetryable(err))
		})
	}
}

func TestTransactionTimestampIsFixed(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tx := NewTransaction(ts, nil, nil)

	assert.Equal(t, ts, tx.Timestamp())
	time.Sleep(time.Millisecond)
	assert.Equal(t, ts, tx.Timestamp())
	assert.Nil(t, tx.State())
	assert.Nil(t, tx.Events())
}
