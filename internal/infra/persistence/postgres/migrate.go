package postgres

import (
	"context"
	"database/sql"

	"rssauth/internal/errors"
	"rssauth/internal/infra/persistence/migrations"

	"github.com/pressly/goose/v3"
)

const migrationDialect = "postgres"

// gooseUpContext and gooseDownContext are seams for tests.
var (
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return goose.UpContext(ctx, db, dir, opts...)
	}
	gooseDownContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return goose.DownContext(ctx, db, dir, opts...)
	}
)

func setupGoose() error {
	goose.SetBaseFS(migrations.Migrations)

	return errors.Wrap(goose.SetDialect(migrationDialect), "set goose dialect")
}

// MigrateUp applies every pending embedded migration.
func MigrateUp(ctx context.Context, db *sql.DB) error {
	if err := setupGoose(); err != nil {
		return err
	}

	return errors.Wrap(gooseUpContext(ctx, db, "."), "apply migrations")
}

// MigrateDown rolls back the most recent migration.
func MigrateDown(ctx context.Context, db *sql.DB) error {
	if err := setupGoose(); err != nil {
		return err
	}

	return errors.Wrap(gooseDownContext(ctx, db, "."), "roll back migration")
}
