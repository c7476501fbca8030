package outbox

import "time"

const (
	defaultLeaseDuration = 30 * time.Second
	defaultBatchSize     = 50
	defaultPollInterval  = time.Second
	defaultWorkers       = 1
	defaultConcurrency   = 8
	defaultPendingCheck  = 0
)

// SenderConfig defines how the Sender claims and publishes outbox rows.
type SenderConfig struct {
	LeaseDuration   time.Duration
	BatchSize       int
	PollInterval    time.Duration
	Workers         int
	Concurrency     int
	PublishTimeout  time.Duration
	Clock           Clock
	Logger          Logger
	Metrics         Metrics
	ErrorHandler    FailureHandler
	PendingInterval time.Duration
}

func (c SenderConfig) withDefaults() SenderConfig {
	if c.LeaseDuration <= 0 {
		c.LeaseDuration = defaultLeaseDuration
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}
	if c.PendingInterval <= 0 {
		c.PendingInterval = defaultPendingCheck
	}

	return c
}

// SenderOption configures Sender behavior.
type SenderOption func(*SenderConfig)

// WithLeaseDuration sets how long a claimed row belongs to one sender.
func WithLeaseDuration(d time.Duration) SenderOption {
	return func(c *SenderConfig) {
		c.LeaseDuration = d
	}
}

// WithBatchSize sets the number of rows claimed per scan.
func WithBatchSize(size int) SenderOption {
	return func(c *SenderConfig) {
		c.BatchSize = size
	}
}

// WithPollInterval sets the delay between scans that did not fill a batch.
func WithPollInterval(interval time.Duration) SenderOption {
	return func(c *SenderConfig) {
		c.PollInterval = interval
	}
}

// WithWorkers sets the number of concurrent scanning workers.
func WithWorkers(count int) SenderOption {
	return func(c *SenderConfig) {
		c.Workers = count
	}
}

// WithConcurrency caps the number of events published at once within a batch.
func WithConcurrency(count int) SenderOption {
	return func(c *SenderConfig) {
		c.Concurrency = count
	}
}

// WithPublishTimeout sets a per-event publish timeout.
func WithPublishTimeout(timeout time.Duration) SenderOption {
	return func(c *SenderConfig) {
		c.PublishTimeout = timeout
	}
}

// WithClock sets the sender clock used for lease decisions.
func WithClock(clock Clock) SenderOption {
	return func(c *SenderConfig) {
		c.Clock = clock
	}
}

// WithLogger sets the sender logger.
func WithLogger(logger Logger) SenderOption {
	return func(c *SenderConfig) {
		c.Logger = logger
	}
}

// WithMetrics sets the sender metrics recorder.
func WithMetrics(metrics Metrics) SenderOption {
	return func(c *SenderConfig) {
		c.Metrics = metrics
	}
}

// WithErrorHandler registers a callback for publish failures.
func WithErrorHandler(handler FailureHandler) SenderOption {
	return func(c *SenderConfig) {
		c.ErrorHandler = handler
	}
}

// WithPendingInterval sets the minimum interval between pending count samples.
// Use a positive value to enable sampling or zero to keep it disabled.
// The default is disabled.
func WithPendingInterval(interval time.Duration) SenderOption {
	return func(c *SenderConfig) {
		c.PendingInterval = interval
	}
}
