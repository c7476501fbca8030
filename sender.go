package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Sender delivers outbox rows: it publishes events handed over after commit and
// periodically claims rows whose lease expired.
type Sender struct {
	store     OutboxStore
	publisher EventPublisher
	cfg       SenderConfig

	pendingMu sync.Mutex
	pendingAt time.Time
}

// NewSender constructs a Sender with defaults and optional settings.
func NewSender(store OutboxStore, publisher EventPublisher, opts ...SenderOption) *Sender {
	if store == nil {
		panic("outbox: nil OutboxStore")
	}
	if publisher == nil {
		panic("outbox: nil EventPublisher")
	}

	var cfg SenderConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	return &Sender{
		store:     store,
		publisher: publisher,
		cfg:       cfg,
	}
}

// LeaseDuration returns how long a claimed row stays owned by one sender.
func (s *Sender) LeaseDuration() time.Duration {
	return s.cfg.LeaseDuration
}

// Publish publishes events and removes the delivered ones from the outbox.
// A failed event does not affect the others; it stays leased and is retried by a later scan.
// The returned error only reports outbox update failures and context cancellation.
func (s *Sender) Publish(ctx context.Context, events []Event) (PublishReport, error) {
	if len(events) == 0 {
		return PublishReport{}, nil
	}

	start := time.Now()
	defer func() {
		s.cfg.Metrics.ObserveBatchDuration(time.Since(start))
	}()

	outcomes := make([]error, len(events))
	var group errgroup.Group
	group.SetLimit(s.cfg.Concurrency)
	for i := range events {
		group.Go(func() error {
			outcomes[i] = s.publishOne(ctx, events[i])

			return nil
		})
	}
	_ = group.Wait()

	cancelled := ctx.Err()
	failed := 0
	report := PublishReport{Delivered: make([]Event, 0, len(events))}
	for i, err := range outcomes {
		if err == nil {
			report.Delivered = append(report.Delivered, events[i])

			continue
		}
		report.Failed = append(report.Failed, Failure{ID: events[i].ID, Err: err})
		if cancelled != nil {
			continue
		}
		failed++
		s.cfg.Logger.Warn("outbox publish failed", "id", events[i].ID, "topic", events[i].Topic, "err", err)
		if s.cfg.ErrorHandler != nil {
			s.cfg.ErrorHandler(ctx, events[i], err)
		}
	}
	s.cfg.Metrics.AddFailed(failed)

	if len(report.Delivered) > 0 {
		// Delivered rows are removed even when ctx is cancelled.
		if err := s.store.UpdateOutbox(context.WithoutCancel(ctx), report.Delivered); err != nil {
			return report, fmt.Errorf("outbox update failed: %w", err)
		}
		s.cfg.Metrics.AddPublished(len(report.Delivered))
	}
	if cancelled != nil {
		return report, cancelled
	}

	return report, nil
}

func (s *Sender) publishOne(ctx context.Context, event Event) (err error) {
	publishCtx := ctx
	cancel := func() {}
	if s.cfg.PublishTimeout > 0 {
		publishCtx, cancel = context.WithTimeout(ctx, s.cfg.PublishTimeout)
	}
	defer cancel()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrWorkerPanic, rec)
		}
	}()

	return s.publisher.Publish(publishCtx, event.PreparedEvent)
}

// ProcessOnce claims one batch of rows with absent or expired leases and publishes it.
// It returns the number of claimed rows.
func (s *Sender) ProcessOnce(ctx context.Context) (int, error) {
	now := s.cfg.Clock.Now()
	events, err := s.store.FetchEvents(ctx, FetchOptions{
		BatchSize:       s.cfg.BatchSize,
		Now:             now,
		LeaseExpiration: now.Add(s.cfg.LeaseDuration),
	})
	if err != nil {
		return 0, fmt.Errorf("outbox fetch failed: %w", err)
	}
	if len(events) == 0 {
		s.maybeRecordPending(ctx)

		return 0, nil
	}

	s.cfg.Metrics.AddClaimed(len(events))
	s.cfg.Logger.Debug("outbox claimed events", "count", len(events))

	if _, err := s.Publish(ctx, events); err != nil {
		return len(events), err
	}

	return len(events), nil
}

// Run starts the scanning loop with the configured number of workers and blocks until ctx is done
// or a worker panics. Buffered publishes are flushed before returning.
func (s *Sender) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, s.cfg.Workers)
	var wg sync.WaitGroup

	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		workerID := i
		go func() {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					err := fmt.Errorf("%w: %v", ErrWorkerPanic, rec)
					s.cfg.Logger.Error("outbox worker panic", "worker", workerID, "panic", rec)
					errCh <- err
					cancel()
				}
			}()

			if err := s.runWorker(ctx, workerID); err != nil && !errors.Is(err, context.Canceled) {
				s.cfg.Logger.Error("outbox worker error", "worker", workerID, "err", err)
				errCh <- err
				cancel()
			}
		}()
	}

	wg.Wait()
	close(errCh)

	if err := s.publisher.Flush(context.WithoutCancel(ctx)); err != nil {
		s.cfg.Logger.Warn("outbox publisher flush failed", "err", err)
	}

	if err := <-errCh; err != nil {
		return err
	}
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func (s *Sender) runWorker(ctx context.Context, workerID int) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		claimed, err := s.ProcessOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.cfg.Logger.Warn("outbox scan failed", "worker", workerID, "err", err)
		}
		if err == nil && claimed >= s.cfg.BatchSize {
			continue
		}

		if sleepErr := sleepContext(ctx, s.cfg.PollInterval); sleepErr != nil {
			return sleepErr
		}
	}
}

func (s *Sender) maybeRecordPending(ctx context.Context) {
	counter, ok := s.store.(PendingCounter)
	if !ok {
		return
	}
	if s.cfg.PendingInterval <= 0 {
		return
	}
	if ctx.Err() != nil {
		return
	}

	now := s.cfg.Clock.Now()
	s.pendingMu.Lock()
	nextAllowed := s.pendingAt.Add(s.cfg.PendingInterval)
	if !s.pendingAt.IsZero() && now.Before(nextAllowed) {
		s.pendingMu.Unlock()

		return
	}
	s.pendingAt = now
	s.pendingMu.Unlock()

	count, err := counter.PendingCount(ctx)
	if err != nil {
		s.cfg.Logger.Warn("outbox pending count failed", "err", err)

		return
	}

	s.cfg.Metrics.SetPending(count)
}
