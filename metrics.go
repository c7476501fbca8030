package outbox

import "time"

// Metrics captures sender-level telemetry.
type Metrics interface {
	// ObserveBatchDuration records the time to publish a batch and update the outbox.
	ObserveBatchDuration(duration time.Duration)
	// AddClaimed increments the count of rows claimed by a recovery scan.
	AddClaimed(count int)
	// AddPublished increments the count of events delivered and removed from the outbox.
	AddPublished(count int)
	// AddFailed increments the count of events whose publish failed.
	AddFailed(count int)
	// SetPending updates the current outbox row count.
	SetPending(count int)
}

// NopMetrics is a no-op metrics recorder.
type NopMetrics struct{}

// ObserveBatchDuration implements Metrics.
func (NopMetrics) ObserveBatchDuration(time.Duration) {}

// AddClaimed implements Metrics.
func (NopMetrics) AddClaimed(int) {}

// AddPublished implements Metrics.
func (NopMetrics) AddPublished(int) {}

// AddFailed implements Metrics.
func (NopMetrics) AddFailed(int) {}

// SetPending implements Metrics.
func (NopMetrics) SetPending(int) {}
