package sqlite

import "time"

const (
	defaultTable       = "outbox"
	defaultBusyTimeout = 5 * time.Second
)

// Config defines SQLite store behavior.
type Config struct {
	// Table is the outbox table name.
	Table string
	// Tables maps entity names to table names.
	Tables map[string]string
	// BusyTimeout is how long Open configures SQLite to wait on a locked database.
	BusyTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Table == "" {
		c.Table = defaultTable
	}
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = defaultBusyTimeout
	}

	return c
}

// Option configures the SQLite store.
type Option func(*Config)

// WithTable sets the outbox table name.
func WithTable(name string) Option {
	return func(c *Config) {
		c.Table = name
	}
}

// WithEntityTable stores entity in table instead of a table named after the entity.
func WithEntityTable(entity, table string) Option {
	return func(c *Config) {
		if c.Tables == nil {
			c.Tables = make(map[string]string)
		}
		c.Tables[entity] = table
	}
}

// WithBusyTimeout sets the busy timeout applied by Open.
func WithBusyTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.BusyTimeout = d
	}
}
