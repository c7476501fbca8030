package amqp

import "errors"

var (
	// ErrChannelRequired indicates a nil channel.
	ErrChannelRequired = errors.New("outbox amqp: channel is required")
	// ErrURLRequired indicates an empty broker URL.
	ErrURLRequired = errors.New("outbox amqp: url is required")
	// ErrConfirmUnavailable indicates the channel could not enter confirm mode.
	ErrConfirmUnavailable = errors.New("outbox amqp: confirm mode unavailable")
	// ErrNacked indicates the broker rejected a message.
	ErrNacked = errors.New("outbox amqp: message nacked by broker")
	// ErrConfirmTimeout indicates the broker did not confirm a message in time.
	ErrConfirmTimeout = errors.New("outbox amqp: confirm timed out")
	// ErrClosed indicates the publisher or its channel is closed.
	ErrClosed = errors.New("outbox amqp: publisher closed")
)
