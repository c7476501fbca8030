package outbox

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
)

// EventEntityName is the logical entity name of outbox rows.
// Storage engines map it to their configured outbox table.
const EventEntityName = "outbox"

// Outbox row columns.
const (
	ColumnID              = "id"
	ColumnTopic           = "topic"
	ColumnData            = "data"
	ColumnAttributes      = "attributes"
	ColumnKey             = "event_key"
	ColumnLeaseExpiration = "lease_expiration"
)

// PreparedEvent is an event serialized into its transport-ready form.
type PreparedEvent struct {
	// ID is zero when returned by EventPublisher.Prepare. The outbox assigns it when staging,
	// publishers should expose it to consumers as the idempotency key.
	ID uuid.UUID
	// Topic is the final destination name.
	Topic string
	// Data is the serialized payload, opaque to the outbox.
	Data []byte
	// Attributes is transport metadata (correlation id, content type, ...).
	Attributes map[string]string
	// Key is an optional partition or ordering hint.
	Key string
}

// Event is an outbox row. LeaseExpiration is nil while the event is only staged in memory
// and is set once the row is written or claimed by a sender.
type Event struct {
	PreparedEvent
	LeaseExpiration *time.Time
}

var _ Entity = (*Event)(nil)

// Claimable reports whether the row has no lease or its lease expired at now.
func (e Event) Claimable(now time.Time) bool {
	return e.LeaseExpiration == nil || !e.LeaseExpiration.After(now)
}

// Clone returns a deep copy of the event.
func (e Event) Clone() Event {
	out := e
	if e.Data != nil {
		out.Data = append([]byte(nil), e.Data...)
	}
	if e.Attributes != nil {
		out.Attributes = maps.Clone(e.Attributes)
	}
	if e.LeaseExpiration != nil {
		lease := *e.LeaseExpiration
		out.LeaseExpiration = &lease
	}

	return out
}

// EntityName implements Entity.
func (e *Event) EntityName() string {
	return EventEntityName
}

// KeyColumns implements Entity.
func (e *Event) KeyColumns() []Column {
	return []Column{{Name: ColumnID, Value: e.ID.String()}}
}

// ValueColumns implements Entity.
func (e *Event) ValueColumns() []Column {
	var attributes any
	if len(e.Attributes) > 0 {
		// map[string]string always encodes.
		encoded, _ := json.Marshal(e.Attributes)
		attributes = string(encoded)
	}

	var key any
	if e.Key != "" {
		key = e.Key
	}

	data := e.Data
	if data == nil {
		data = []byte{}
	}

	var lease any
	if e.LeaseExpiration != nil {
		lease = e.LeaseExpiration.UnixMilli()
	}

	return []Column{
		{Name: ColumnTopic, Value: e.Topic},
		{Name: ColumnData, Value: data},
		{Name: ColumnAttributes, Value: attributes},
		{Name: ColumnKey, Value: key},
		{Name: ColumnLeaseExpiration, Value: lease},
	}
}

// Scan implements Entity, reading columns in KeyColumns then ValueColumns order.
func (e *Event) Scan(scan func(dest ...any) error) error {
	var (
		id         string
		topic      string
		data       []byte
		attributes sql.NullString
		key        sql.NullString
		lease      sql.NullInt64
	)
	if err := scan(&id, &topic, &data, &attributes, &key, &lease); err != nil {
		return err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	var attrs map[string]string
	if attributes.Valid && attributes.String != "" {
		if err := json.Unmarshal([]byte(attributes.String), &attrs); err != nil {
			return fmt.Errorf("outbox: decode attributes of %s: %w", parsed, err)
		}
	}

	*e = Event{
		PreparedEvent: PreparedEvent{
			ID:         parsed,
			Topic:      topic,
			Data:       data,
			Attributes: attrs,
			Key:        key.String,
		},
	}
	if lease.Valid {
		expiration := time.UnixMilli(lease.Int64).UTC()
		e.LeaseExpiration = &expiration
	}

	return nil
}

// PublishOptions carries per-event transport options passed to EventPublisher.Prepare.
type PublishOptions struct {
	Attributes map[string]string
	Key        string
}

// PublishOption configures PublishOptions.
type PublishOption func(*PublishOptions)

// WithAttributes merges attributes into the event attributes.
func WithAttributes(attributes map[string]string) PublishOption {
	return func(o *PublishOptions) {
		if len(attributes) == 0 {
			return
		}
		if o.Attributes == nil {
			o.Attributes = make(map[string]string, len(attributes))
		}
		maps.Copy(o.Attributes, attributes)
	}
}

// WithAttribute sets a single event attribute.
func WithAttribute(name, value string) PublishOption {
	return WithAttributes(map[string]string{name: value})
}

// WithKey sets the partition or ordering key.
func WithKey(key string) PublishOption {
	return func(o *PublishOptions) {
		o.Key = key
	}
}

// NewPublishOptions applies opts to an empty PublishOptions.
func NewPublishOptions(opts ...PublishOption) PublishOptions {
	var out PublishOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&out)
		}
	}

	return out
}
