package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	amqp091 "github.com/rabbitmq/amqp091-go"

	"github.com/velmie/txoutbox"
)

// Channel is the subset of *amqp091.Channel used by the publisher.
type Channel interface {
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp091.Confirmation) chan amqp091.Confirmation
	PublishWithContext(
		ctx context.Context,
		exchange, key string,
		mandatory, immediate bool,
		msg amqp091.Publishing,
	) error
	Close() error
}

// Publisher implements outbox.EventPublisher on a confirm-mode AMQP channel.
// Publishes are serialized on the channel so every confirm matches its message.
type Publisher struct {
	ch       Channel
	conn     *amqp091.Connection
	confirms chan amqp091.Confirmation
	cfg      Config

	publishMu sync.Mutex
	tag       uint64
	closed    bool

	pendingMu sync.Mutex
	pending   int
	idle      chan struct{}
}

var _ outbox.EventPublisher = (*Publisher)(nil)

// NewPublisher puts ch into confirm mode and returns a publisher using it.
func NewPublisher(ch Channel, opts ...Option) (*Publisher, error) {
	if ch == nil {
		return nil, ErrChannelRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfirmUnavailable, err)
	}
	confirms := ch.NotifyPublish(make(chan amqp091.Confirmation, confirmBuffer))

	return &Publisher{
		ch:       ch,
		confirms: confirms,
		cfg:      cfg.withDefaults(),
	}, nil
}

// Dial connects to the broker at url and opens a dedicated channel for the publisher.
func Dial(url string, opts ...Option) (*Publisher, error) {
	if url == "" {
		return nil, ErrURLRequired
	}

	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("outbox amqp: dial failed: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("outbox amqp: open channel failed: %w", err)
	}

	publisher, err := NewPublisher(ch, opts...)
	if err != nil {
		_ = conn.Close()

		return nil, err
	}
	publisher.conn = conn

	return publisher, nil
}

// Prepare serializes event as JSON unless it already is []byte or json.RawMessage.
func (p *Publisher) Prepare(
	_ context.Context,
	topic string,
	event any,
	opts outbox.PublishOptions,
) (outbox.PreparedEvent, error) {
	if topic == "" {
		return outbox.PreparedEvent{}, outbox.ErrTopicRequired
	}

	var data []byte
	switch v := event.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		encoded, err := json.Marshal(event)
		if err != nil {
			return outbox.PreparedEvent{}, fmt.Errorf("outbox amqp: encode %s event: %w", topic, err)
		}
		data = encoded
	}

	var attributes map[string]string
	if len(p.cfg.Attributes) > 0 || len(opts.Attributes) > 0 {
		attributes = make(map[string]string, len(p.cfg.Attributes)+len(opts.Attributes))
		maps.Copy(attributes, p.cfg.Attributes)
		maps.Copy(attributes, opts.Attributes)
	}

	return outbox.PreparedEvent{
		Topic:      p.cfg.TopicPrefix + topic,
		Data:       data,
		Attributes: attributes,
		Key:        opts.Key,
	}, nil
}

// Publish sends event and waits for the broker confirm.
func (p *Publisher) Publish(ctx context.Context, event outbox.PreparedEvent) error {
	p.begin()
	defer p.end()

	p.publishMu.Lock()
	defer p.publishMu.Unlock()

	if p.closed {
		return ErrClosed
	}

	msg := amqp091.Publishing{
		Headers:      headers(event.Attributes),
		ContentType:  p.cfg.ContentType,
		DeliveryMode: amqp091.Persistent,
		MessageId:    event.ID.String(),
		Timestamp:    time.Now().UTC(),
		Body:         event.Data,
	}
	if err := p.ch.PublishWithContext(ctx, event.Topic, event.Key, p.cfg.Mandatory, false, msg); err != nil {
		return fmt.Errorf("outbox amqp: publish %s to %s: %w", event.ID, event.Topic, err)
	}
	p.tag++

	return p.waitConfirm(ctx, p.tag)
}

// Flush waits until in-flight publishes finished or ctx is done.
func (p *Publisher) Flush(ctx context.Context) error {
	p.pendingMu.Lock()
	pending, idle := p.pending, p.idle
	p.pendingMu.Unlock()

	if pending == 0 {
		return nil
	}

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the channel and, when the publisher was dialed, the connection.
func (p *Publisher) Close() error {
	p.publishMu.Lock()
	defer p.publishMu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	if err := p.ch.Close(); err != nil && !errors.Is(err, amqp091.ErrClosed) {
		errs = append(errs, fmt.Errorf("outbox amqp: close channel: %w", err))
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && !errors.Is(err, amqp091.ErrClosed) {
			errs = append(errs, fmt.Errorf("outbox amqp: close connection: %w", err))
		}
	}

	return errors.Join(errs...)
}

// waitConfirm waits for the confirm of delivery tag. Confirms of earlier messages whose
// wait was abandoned are skipped.
func (p *Publisher) waitConfirm(ctx context.Context, tag uint64) error {
	timer := time.NewTimer(p.cfg.ConfirmTimeout)
	defer timer.Stop()

	for {
		select {
		case confirm, ok := <-p.confirms:
			if !ok {
				return ErrClosed
			}
			if confirm.DeliveryTag < tag {
				continue
			}
			if !confirm.Ack {
				return fmt.Errorf("%w: delivery tag %d", ErrNacked, confirm.DeliveryTag)
			}

			return nil
		case <-timer.C:
			return fmt.Errorf("%w: delivery tag %d", ErrConfirmTimeout, tag)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *Publisher) begin() {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()

	if p.pending == 0 {
		p.idle = make(chan struct{})
	}
	p.pending++
}

func (p *Publisher) end() {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()

	p.pending--
	if p.pending == 0 {
		close(p.idle)
	}
}

func headers(attributes map[string]string) amqp091.Table {
	if len(attributes) == 0 {
		return nil
	}

	table := make(amqp091.Table, len(attributes))
	for name, value := range attributes {
		table[name] = value
	}

	return table
}
