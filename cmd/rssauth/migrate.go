package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"

	"rssauth/config"
	logs "rssauth/internal/infra/log"
	"rssauth/internal/infra/persistence/postgres"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the credential store schema",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigration(cmd.Context(), "up", postgres.MigrateUp)
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigration(cmd.Context(), "down", postgres.MigrateDown)
			},
		},
	)

	return cmd
}

func runMigration(ctx context.Context, direction string, migrate func(context.Context, *sql.DB) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.New()
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	logger, err := logs.NewWithWriter(cfg, os.Stderr)
	if err != nil {
		return errors.Wrap(err, "create logger")
	}

	if cfg.Store.Driver != config.StoreDriverPostgres {
		return errors.Errorf("migrations need the %s store driver, configured driver is %q",
			config.StoreDriverPostgres, cfg.Store.Driver)
	}

	db, err := postgres.Open(cfg, logger)
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(err, "get sql.DB")
	}
	defer sqlDB.Close()

	if err := migrate(ctx, sqlDB); err != nil {
		return err
	}

	logger.Info("Migration finished", slog.String("direction", direction))

	return nil
}
