package outbox

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidBatchSize indicates that the requested batch size is not positive.
	ErrInvalidBatchSize = errors.New("outbox batch size must be positive")
	// ErrTransactionOldTimestamp matches TransactionOldTimestampError with errors.Is.
	ErrTransactionOldTimestamp = errors.New("outbox transaction timestamp is older than a compared date")
	// ErrTopicRequired is returned when a prepared event has no topic.
	ErrTopicRequired = errors.New("outbox event topic is required")
	// ErrEntityRequired is returned when a state operation receives a nil entity.
	ErrEntityRequired = errors.New("outbox entity is required")
	// ErrKeyRequired is returned when an entity exposes no key columns.
	ErrKeyRequired = errors.New("outbox entity key is required")
	// ErrInvalidID is returned when a stored event id cannot be parsed.
	ErrInvalidID = errors.New("outbox event id is invalid")
	// ErrWorkerPanic indicates a sender worker panic.
	ErrWorkerPanic = errors.New("outbox worker panic")
)

// TransactionOldTimestampError reports that a transaction runs at or before a date it must supersede.
// It is retryable: a fresh attempt gets a fresh timestamp.
type TransactionOldTimestampError struct {
	// Timestamp is the transaction timestamp.
	Timestamp time.Time
	// Delay is how far the compared date is ahead of Timestamp.
	Delay time.Duration
}

func (e *TransactionOldTimestampError) Error() string {
	return fmt.Sprintf(
		"outbox: transaction timestamp %s is not after the compared date (delay %s)",
		e.Timestamp.Format(time.RFC3339Nano),
		e.Delay,
	)
}

// Is reports whether target is ErrTransactionOldTimestamp.
func (e *TransactionOldTimestampError) Is(target error) bool {
	return target == ErrTransactionOldTimestamp
}

// Retryable implements the retry marker checked by IsRetryable.
func (e *TransactionOldTimestampError) Retryable() bool {
	return true
}

// RetryableError marks a wrapped error as safe to retry from a fresh transaction.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "outbox: retryable: " + e.Err.Error()
}

// Unwrap returns the wrapped error.
func (e *RetryableError) Unwrap() error {
	return e.Err
}

// Retryable implements the retry marker checked by IsRetryable.
func (e *RetryableError) Retryable() bool {
	return true
}

// Retryable wraps err so that IsRetryable reports true. A nil err stays nil.
func Retryable(err error) error {
	if err == nil || IsRetryable(err) {
		return err
	}

	return &RetryableError{Err: err}
}

// IsRetryable reports whether any error in err's chain is marked retryable.
func IsRetryable(err error) bool {
	var marker interface{ Retryable() bool }
	if errors.As(err, &marker) {
		return marker.Retryable()
	}

	return false
}
