package outbox

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retrySchedule yields delays growing from base by a factor of two up to limit, with full jitter.
type retrySchedule struct {
	exp *backoff.ExponentialBackOff
}

func newRetrySchedule(base, limit time.Duration) *retrySchedule {
	exp := &backoff.ExponentialBackOff{
		InitialInterval:     base,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         limit,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	exp.Reset()

	return &retrySchedule{exp: exp}
}

// Next returns the delay before the next attempt.
func (s *retrySchedule) Next() time.Duration {
	return fullJitter(s.exp.NextBackOff())
}

// fullJitter returns a random duration in [0, delay).
func fullJitter(delay time.Duration) time.Duration {
	if delay <= 0 {
		return 0
	}

	return rand.N(delay) //nolint:gosec // jitter does not need a cryptographic source.
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
