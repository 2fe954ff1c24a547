// Package migrate brings the socialkeeper schema up to date using the goose
// migrations embedded in the binary.
package migrate

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/and161185/socialkeeper/migrations"
)

const dialect = "postgres"

// Up applies every pending schema migration.
func Up(ctx context.Context, dsn string) error {
	return withSchema(dsn, func(db *sql.DB) error {
		if err := goose.UpContext(ctx, db, "."); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		return nil
	})
}

// Version returns the schema version recorded in the goose table.
func Version(ctx context.Context, dsn string) (int64, error) {
	var v int64
	err := withSchema(dsn, func(db *sql.DB) error {
		var err error
		v, err = goose.GetDBVersionContext(ctx, db)
		if err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}
		return nil
	})
	return v, err
}

// withSchema opens a short-lived database/sql handle for goose and points
// goose at the embedded migration files.
func withSchema(dsn string, fn func(*sql.DB) error) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open schema connection: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	return fn(db)
}
