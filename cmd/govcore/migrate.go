package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ascension-labs/govcore/internal/adapter/postgres"
	"github.com/ascension-labs/govcore/internal/adapter/sqlite"
	"github.com/ascension-labs/govcore/internal/config"
)

func migrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the audit ledger schema",
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the last N postgres migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := postgresConfig(*configPath)
			if err != nil {
				return err
			}
			if steps < 1 {
				return fmt.Errorf("--steps must be >= 1, got %d", steps)
			}
			if err := postgres.RollbackMigrations(cmd.Context(), cfg.Postgres.DSN, steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", steps)
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations for the configured ledger driver",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := loadConfig(*configPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := migrateUp(cmd.Context(), cfg); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s ledger is up to date\n", cfg.Ledger.Driver)
				return nil
			},
		},
		down,
		&cobra.Command{
			Use:   "version",
			Short: "Print the current postgres migration version",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := postgresConfig(*configPath)
				if err != nil {
					return err
				}
				v, err := postgres.MigrationVersion(cmd.Context(), cfg.Postgres.DSN)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d\n", v)
				return nil
			},
		},
	)
	return cmd
}

// migrateUp applies migrations. SQLite migrates on open.
func migrateUp(ctx context.Context, cfg *config.Config) error {
	switch cfg.Ledger.Driver {
	case "postgres":
		return postgres.RunMigrations(ctx, cfg.Postgres.DSN)
	case "sqlite":
		s, err := sqlite.Open(ctx, cfg.Ledger.SQLitePath)
		if err != nil {
			return err
		}
		return s.Close()
	default:
		return fmt.Errorf("ledger driver %q has no schema", cfg.Ledger.Driver)
	}
}

func postgresConfig(path string) (*config.Config, error) {
	cfg, err := loadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Ledger.Driver != "postgres" {
		return nil, fmt.Errorf("ledger driver is %q; down and version apply to postgres only", cfg.Ledger.Driver)
	}
	return cfg, nil
}
