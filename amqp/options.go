package amqp

import (
	"maps"
	"time"
)

const (
	defaultConfirmTimeout = 5 * time.Second
	defaultContentType    = "application/json"
	confirmBuffer         = 256
)

// Config defines publisher behavior.
type Config struct {
	// TopicPrefix is prepended to every topic in Prepare.
	TopicPrefix string
	// Attributes are merged under the attributes of every event.
	Attributes map[string]string
	// ContentType is set on every message.
	ContentType string
	// ConfirmTimeout bounds the wait for a broker confirm.
	ConfirmTimeout time.Duration
	// Mandatory makes the broker return messages that no queue receives.
	Mandatory bool
}

func (c Config) withDefaults() Config {
	if c.ContentType == "" {
		c.ContentType = defaultContentType
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = defaultConfirmTimeout
	}

	return c
}

// Option configures the publisher.
type Option func(*Config)

// WithTopicPrefix prefixes every topic, e.g. with an environment name.
func WithTopicPrefix(prefix string) Option {
	return func(c *Config) {
		c.TopicPrefix = prefix
	}
}

// WithDefaultAttributes sets attributes added to every event unless the event overrides them.
func WithDefaultAttributes(attributes map[string]string) Option {
	return func(c *Config) {
		c.Attributes = maps.Clone(attributes)
	}
}

// WithContentType sets the message content type.
func WithContentType(contentType string) Option {
	return func(c *Config) {
		c.ContentType = contentType
	}
}

// WithConfirmTimeout sets how long Publish waits for a broker confirm.
func WithConfirmTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.ConfirmTimeout = timeout
	}
}

// WithMandatory sets the mandatory flag on published messages.
func WithMandatory(mandatory bool) Option {
	return func(c *Config) {
		c.Mandatory = mandatory
	}
}
