package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/velmie/txoutbox/mysql"
	"github.com/velmie/txoutbox/postgres"
	"github.com/velmie/txoutbox/sqlite"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the outbox table DDL for the configured backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}

			ddl, err := schemaFor(cfg.Backend, cfg.Table)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), ddl)

			return err
		},
	}
}

func schemaFor(backend, table string) (string, error) {
	switch backend {
	case backendMySQL:
		return mysql.Schema(table)
	case backendPostgres:
		return postgres.Schema(table)
	case backendSQLite:
		return sqlite.Schema(table)
	default:
		return "", fmt.Errorf("%w: %q", errUnknownBackend, backend)
	}
}
