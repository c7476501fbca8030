// Package otelmetrics records outbox sender metrics with OpenTelemetry.
package otelmetrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/velmie/txoutbox"
)

const scope = "github.com/velmie/txoutbox"

// Instrument names.
const (
	BatchDurationName = "outbox.batch.duration"
	ClaimedName       = "outbox.events.claimed"
	PublishedName     = "outbox.events.published"
	FailedName        = "outbox.events.failed"
	PendingName       = "outbox.events.pending"
)

// Config defines the meter provider and the attributes added to every measurement.
type Config struct {
	MeterProvider metric.MeterProvider
	Attributes    []attribute.KeyValue
}

// Option configures Metrics.
type Option func(*Config)

// WithMeterProvider sets the meter provider. The global provider is used by default.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(c *Config) {
		c.MeterProvider = provider
	}
}

// WithAttributes adds attributes to every measurement, e.g. the outbox table.
func WithAttributes(attributes ...attribute.KeyValue) Option {
	return func(c *Config) {
		c.Attributes = append(c.Attributes, attributes...)
	}
}

// Metrics implements outbox.Metrics with OpenTelemetry instruments.
type Metrics struct {
	batchDuration metric.Float64Histogram
	claimed       metric.Int64Counter
	published     metric.Int64Counter
	failed        metric.Int64Counter
	pending       metric.Int64Gauge
	attributes    metric.MeasurementOption
}

var _ outbox.Metrics = (*Metrics)(nil)

// New creates the outbox instruments.
func New(opts ...Option) (*Metrics, error) {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}
	meter := cfg.MeterProvider.Meter(scope)

	batchDuration, err := meter.Float64Histogram(BatchDurationName,
		metric.WithDescription("Duration of publishing one batch of outbox events."),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	claimed, err := meter.Int64Counter(ClaimedName,
		metric.WithDescription("Outbox events claimed by lease scans."),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}
	published, err := meter.Int64Counter(PublishedName,
		metric.WithDescription("Outbox events published and removed from the outbox."),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}
	failed, err := meter.Int64Counter(FailedName,
		metric.WithDescription("Outbox events whose publish failed."),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}
	pending, err := meter.Int64Gauge(PendingName,
		metric.WithDescription("Rows currently in the outbox."),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		batchDuration: batchDuration,
		claimed:       claimed,
		published:     published,
		failed:        failed,
		pending:       pending,
		attributes:    metric.WithAttributeSet(attribute.NewSet(cfg.Attributes...)),
	}, nil
}

// ObserveBatchDuration implements outbox.Metrics.
func (m *Metrics) ObserveBatchDuration(d time.Duration) {
	m.batchDuration.Record(context.Background(), d.Seconds(), m.attributes)
}

// AddClaimed implements outbox.Metrics.
func (m *Metrics) AddClaimed(n int) {
	m.add(m.claimed, n)
}

// AddPublished implements outbox.Metrics.
func (m *Metrics) AddPublished(n int) {
	m.add(m.published, n)
}

// AddFailed implements outbox.Metrics.
func (m *Metrics) AddFailed(n int) {
	m.add(m.failed, n)
}

// SetPending implements outbox.Metrics.
func (m *Metrics) SetPending(n int) {
	m.pending.Record(context.Background(), int64(n), m.attributes)
}

func (m *Metrics) add(counter metric.Int64Counter, n int) {
	if n <= 0 {
		return
	}
	counter.Add(context.Background(), int64(n), m.attributes)
}
