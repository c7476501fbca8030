// Command outbox-sender delivers outbox rows left behind by application processes.
//
// It claims rows whose lease expired, publishes them to RabbitMQ and deletes the delivered ones.
// Applications normally publish right after commit; this command recovers what they could not.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "outbox-sender",
		Short:         "Deliver transactional outbox rows to RabbitMQ",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to a YAML config file")
	root.PersistentFlags().String("backend", "", "Storage backend: mysql, postgres or sqlite")
	root.PersistentFlags().String("table", "", "Outbox table name")

	root.AddCommand(newRunCmd())
	root.AddCommand(newSchemaCmd())

	return root
}

// resolveConfig loads the config file and applies flags set on the command line.
func resolveConfig(cmd *cobra.Command) (Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := loadConfig(path)
	if err != nil {
		return Config{}, err
	}

	err = errors.Join(
		overrideString(cmd, "backend", &cfg.Backend),
		overrideString(cmd, "table", &cfg.Table),
		overrideString(cmd, "dsn", &cfg.DSN),
		overrideString(cmd, "amqp-url", &cfg.AMQP.URL),
		overrideString(cmd, "topic-prefix", &cfg.AMQP.TopicPrefix),
		overrideString(cmd, "log-level", &cfg.Log.Level),
		overrideString(cmd, "metrics-endpoint", &cfg.Metrics.Endpoint),
		overrideDuration(cmd, "lease", &cfg.Sender.LeaseDuration),
		overrideDuration(cmd, "poll-interval", &cfg.Sender.PollInterval),
		overrideInt(cmd, "batch-size", &cfg.Sender.BatchSize),
		overrideInt(cmd, "workers", &cfg.Sender.Workers),
	)
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func changed(cmd *cobra.Command, name string) bool {
	flag := cmd.Flags().Lookup(name)

	return flag != nil && flag.Changed
}

func overrideString(cmd *cobra.Command, name string, dst *string) error {
	if !changed(cmd, name) {
		return nil
	}
	value, err := cmd.Flags().GetString(name)
	if err != nil {
		return err
	}
	*dst = value

	return nil
}

func overrideDuration(cmd *cobra.Command, name string, dst *time.Duration) error {
	if !changed(cmd, name) {
		return nil
	}
	value, err := cmd.Flags().GetDuration(name)
	if err != nil {
		return err
	}
	*dst = value

	return nil
}

func overrideInt(cmd *cobra.Command, name string, dst *int) error {
	if !changed(cmd, name) {
		return nil
	}
	value, err := cmd.Flags().GetInt(name)
	if err != nil {
		return err
	}
	*dst = value

	return nil
}
