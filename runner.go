package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	defaultMaxAttempts = 5
	defaultRetryBase   = 20 * time.Millisecond
	defaultRetryMax    = time.Second
)

// RunnerConfig defines how the Runner executes and retries transactions.
type RunnerConfig struct {
	// Clock produces transaction timestamps.
	Clock Clock
	// LeaseClock produces the wall-clock instant lease expirations are computed from.
	LeaseClock Clock
	// LeaseDuration is used for written rows when the Runner has no Sender.
	LeaseDuration time.Duration
	MaxAttempts   int
	RetryBase     time.Duration
	RetryMax      time.Duration
	Logger        Logger
	IDs           IDGenerator
}

func (c RunnerConfig) withDefaults() RunnerConfig {
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.LeaseClock == nil {
		c.LeaseClock = SystemClock{}
	}
	if c.LeaseDuration <= 0 {
		c.LeaseDuration = defaultLeaseDuration
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.RetryBase <= 0 {
		c.RetryBase = defaultRetryBase
	}
	if c.RetryMax <= 0 {
		c.RetryMax = defaultRetryMax
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.IDs == nil {
		c.IDs = RandomIDGenerator{}
	}

	return c
}

// RunnerOption configures Runner behavior.
type RunnerOption func(*RunnerConfig)

// WithRunnerClock sets the clock producing transaction timestamps.
func WithRunnerClock(clock Clock) RunnerOption {
	return func(c *RunnerConfig) {
		c.Clock = clock
	}
}

// WithLeaseClock sets the clock lease expirations are computed from.
func WithLeaseClock(clock Clock) RunnerOption {
	return func(c *RunnerConfig) {
		c.LeaseClock = clock
	}
}

// WithRunnerLeaseDuration sets the lease of written rows when the Runner has no Sender.
func WithRunnerLeaseDuration(d time.Duration) RunnerOption {
	return func(c *RunnerConfig) {
		c.LeaseDuration = d
	}
}

// WithMaxAttempts caps the number of attempts for retryable failures.
func WithMaxAttempts(attempts int) RunnerOption {
	return func(c *RunnerConfig) {
		c.MaxAttempts = attempts
	}
}

// WithRetryBackoff sets the exponential backoff bounds between attempts.
func WithRetryBackoff(base, limit time.Duration) RunnerOption {
	return func(c *RunnerConfig) {
		c.RetryBase = base
		c.RetryMax = limit
	}
}

// WithRunnerLogger sets the runner logger.
func WithRunnerLogger(logger Logger) RunnerOption {
	return func(c *RunnerConfig) {
		c.Logger = logger
	}
}

// WithIDGenerator sets the event ID generator.
func WithIDGenerator(ids IDGenerator) RunnerOption {
	return func(c *RunnerConfig) {
		c.IDs = ids
	}
}

// Commit describes a committed transaction.
type Commit struct {
	// Timestamp is the timestamp of the attempt that committed.
	Timestamp time.Time
	// Attempts is the number of attempts it took.
	Attempts int
	// Events are the outbox rows written with the state changes.
	Events []Event
}

// Runner executes business logic in a state transaction and writes staged events
// as outbox rows within the same commit.
type Runner struct {
	store     StateStore
	publisher EventPublisher
	sender    *Sender
	cfg       RunnerConfig

	dispatches sync.WaitGroup
}

// NewRunner constructs a Runner. A nil sender disables post-commit delivery,
// rows are then delivered by a Sender scanning the outbox.
func NewRunner(store StateStore, publisher EventPublisher, sender *Sender, opts ...RunnerOption) *Runner {
	if store == nil {
		panic("outbox: nil StateStore")
	}
	if publisher == nil {
		panic("outbox: nil EventPublisher")
	}

	var cfg RunnerConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if sender != nil {
		cfg.LeaseDuration = sender.LeaseDuration()
	}

	return &Runner{
		store:     store,
		publisher: publisher,
		sender:    sender,
		cfg:       cfg.withDefaults(),
	}
}

// Execute runs fn in a transaction, retrying retryable failures from a fresh transaction.
// On success the state changes and the outbox rows are committed and the rows are handed
// to the Sender in the background. On failure nothing is committed.
func (r *Runner) Execute(ctx context.Context, fn func(ctx context.Context, tx *Transaction) error) (Commit, error) {
	if fn == nil {
		panic("outbox: nil transaction func")
	}

	var lastErr error
	schedule := newRetrySchedule(r.cfg.RetryBase, r.cfg.RetryMax)
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		commit, err := r.attempt(ctx, fn)
		if err == nil {
			commit.Attempts = attempt
			r.dispatch(ctx, commit.Events)

			return commit, nil
		}

		lastErr = err
		if !IsRetryable(err) || attempt == r.cfg.MaxAttempts || ctx.Err() != nil {
			break
		}

		delay := schedule.Next()
		r.cfg.Logger.Debug("outbox transaction retry", "attempt", attempt, "delay", delay, "err", err)
		if sleepErr := sleepContext(ctx, delay); sleepErr != nil {
			return Commit{}, errors.Join(err, sleepErr)
		}
	}

	return Commit{}, lastErr
}

// Run executes fn through r.Execute and returns its result.
func Run[T any](ctx context.Context, r *Runner, fn func(ctx context.Context, tx *Transaction) (T, error)) (T, error) {
	var result T
	_, err := r.Execute(ctx, func(ctx context.Context, tx *Transaction) error {
		value, err := fn(ctx, tx)
		if err != nil {
			return err
		}
		result = value

		return nil
	})
	if err != nil {
		var zero T

		return zero, err
	}

	return result, nil
}

// Wait blocks until background deliveries started by Execute finish.
func (r *Runner) Wait() {
	r.dispatches.Wait()
}

func (r *Runner) attempt(ctx context.Context, fn func(ctx context.Context, tx *Transaction) error) (Commit, error) {
	staging := NewStaging(r.publisher, r.cfg.IDs)

	var commit Commit
	err := r.store.RunStateTransaction(ctx, func(ctx context.Context, state StateTransaction) error {
		tx := NewTransaction(r.cfg.Clock.Now(), state, staging)
		if err := fn(ctx, tx); err != nil {
			return err
		}

		events, err := r.commitEvents(ctx, state, staging)
		if err != nil {
			return err
		}
		commit = Commit{Timestamp: tx.Timestamp(), Events: events}

		return nil
	})
	if err != nil {
		return Commit{}, err
	}

	return commit, nil
}

// commitEvents writes staged events as outbox rows sharing one wall-clock lease.
func (r *Runner) commitEvents(ctx context.Context, state StateTransaction, staging *Staging) ([]Event, error) {
	events := staging.Events()
	if len(events) == 0 {
		return nil, nil
	}

	lease := r.cfg.LeaseClock.Now().Add(r.cfg.LeaseDuration)
	for i := range events {
		expiration := lease
		events[i].LeaseExpiration = &expiration
		if err := state.Replace(ctx, &events[i]); err != nil {
			return nil, fmt.Errorf("outbox: write event %s: %w", events[i].ID, err)
		}
	}

	return events, nil
}

func (r *Runner) dispatch(ctx context.Context, events []Event) {
	if r.sender == nil || len(events) == 0 {
		return
	}

	batch := make([]Event, len(events))
	for i := range events {
		batch[i] = events[i].Clone()
	}
	dispatchCtx := context.WithoutCancel(ctx)

	r.dispatches.Add(1)
	go func() {
		defer r.dispatches.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.cfg.Logger.Error("outbox dispatch panic", "panic", rec)
			}
		}()

		report, err := r.sender.Publish(dispatchCtx, batch)
		if err != nil {
			r.cfg.Logger.Warn("outbox dispatch failed", "count", len(batch), "err", err)

			return
		}
		if len(report.Failed) > 0 {
			r.cfg.Logger.Debug("outbox dispatch left events for recovery", "failed", len(report.Failed))
		}
	}()
}
