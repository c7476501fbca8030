package outbox

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryable(t *testing.T) {
	base := errors.New("deadlock")

	wrapped := Retryable(base)
	assert.True(t, IsRetryable(wrapped))
	assert.ErrorIs(t, wrapped, base)
	assert.True(t, IsRetryable(fmt.Errorf("context: %w", wrapped)))
	assert.Same(t, wrapped, Retryable(wrapped))

	assert.NoError(t, Retryable(nil))
	assert.False(t, IsRetryable(base))
	assert.False(t, IsRetryable(nil))
}

func TestTransactionOldTimestampErrorMessage(t *testing.T) {
	err := &TransactionOldTimestampError{Delay: 3}
	assert.Contains(t, err.Error(), "delay 3ns")
	assert.NotErrorIs(t, err, ErrInvalidBatchSize)
}
