package postgres

import "database/sql"

const defaultTable = "outbox"

// Config defines PostgreSQL store behavior.
type Config struct {
	// Table is the outbox table name. Use schema.table for a non-default schema.
	Table string
	// Tables maps entity names to table names.
	Tables map[string]string
	// Isolation is the isolation level of state transactions. Zero uses the server default.
	Isolation sql.IsolationLevel
}

func (c Config) withDefaults() Config {
	if c.Table == "" {
		c.Table = defaultTable
	}

	return c
}

// Option configures the PostgreSQL store.
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

// WithIsolation sets the isolation level of state transactions.
// Serializable transactions surface conflicts as retryable errors.
func WithIsolation(level sql.IsolationLevel) Option {
	return func(c *Config) {
		c.Isolation = level
	}
}
