package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed 0001_create_progress_tables.sql
var createProgressTablesSQL string

var Migrations = migrate.NewMigrations()

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, createProgressTablesSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `
				DROP TABLE IF EXISTS quiz_completions;
				DROP TABLE IF EXISTS lab_attempts;
				DROP TABLE IF EXISTS xp_transactions;
				DROP TABLE IF EXISTS profiles;
				DROP TABLE IF EXISTS labs;
				DROP TABLE IF EXISTS lessons;
			`)
			return err
		},
	)
}
