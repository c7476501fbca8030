package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	backendMySQL    = "mysql"
	backendPostgres = "postgres"
	backendSQLite   = "sqlite"
)

var backends = []string{backendMySQL, backendPostgres, backendSQLite}

var (
	errUnknownBackend = errors.New("unknown backend")
	errDSNRequired    = errors.New("dsn is required")
	errAMQPRequired   = errors.New("amqp url is required")
)

// Config is the sender configuration file. Values may reference environment variables as ${NAME}.
type Config struct {
	Backend string        `yaml:"backend"`
	DSN     string        `yaml:"dsn"`
	Table   string        `yaml:"table"`
	AMQP    AMQPConfig    `yaml:"amqp"`
	Sender  SenderConfig  `yaml:"sender"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// AMQPConfig configures the RabbitMQ publisher.
type AMQPConfig struct {
	URL            string            `yaml:"url"`
	TopicPrefix    string            `yaml:"topic_prefix"`
	ConfirmTimeout time.Duration     `yaml:"confirm_timeout"`
	Attributes     map[string]string `yaml:"attributes"`
}

// SenderConfig configures the claim loop.
type SenderConfig struct {
	LeaseDuration   time.Duration `yaml:"lease_duration"`
	BatchSize       int           `yaml:"batch_size"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	Workers         int           `yaml:"workers"`
	Concurrency     int           `yaml:"concurrency"`
	PublishTimeout  time.Duration `yaml:"publish_timeout"`
	PendingInterval time.Duration `yaml:"pending_interval"`
}

// MetricsConfig configures the OTLP metric exporter. An empty endpoint disables metrics.
type MetricsConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	Interval    time.Duration `yaml:"interval"`
	ServiceName string        `yaml:"service_name"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func defaultConfig() Config {
	return Config{
		Backend: backendMySQL,
		Table:   "outbox",
		AMQP:    AMQPConfig{ConfirmTimeout: 5 * time.Second},
		Sender: SenderConfig{
			LeaseDuration:   30 * time.Second,
			BatchSize:       50,
			PollInterval:    time.Second,
			Workers:         1,
			Concurrency:     8,
			PendingInterval: time.Minute,
		},
		Log:     LogConfig{Level: "info"},
		Metrics: MetricsConfig{Interval: 15 * time.Second, ServiceName: "outbox-sender"},
	}
}

// loadConfig reads path over the defaults. An empty path returns the defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader([]byte(os.ExpandEnv(string(raw)))))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

func (c Config) validateStore() error {
	if !slices.Contains(backends, c.Backend) {
		return fmt.Errorf("%w: %q (want one of %v)", errUnknownBackend, c.Backend, backends)
	}
	if c.DSN == "" {
		return errDSNRequired
	}

	return nil
}

func (c Config) validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if c.AMQP.URL == "" {
		return errAMQPRequired
	}

	return nil
}
