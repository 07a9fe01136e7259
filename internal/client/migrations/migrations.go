// Package migrations embeds the goose migrations of the local SQLite
// database and of the optional Postgres attachment catalog.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

// Migrations holds the SQLite migrations, applied from ".".
//
//go:embed *.sql
var Migrations embed.FS

// Postgres holds the Postgres catalog migrations, applied from "postgres".
//
//go:embed postgres/*.sql
var Postgres embed.FS

// Up applies the SQLite migrations to db.
func Up(ctx context.Context, db *sql.DB) error {
	return up(ctx, goose.DialectSQLite3, db, Migrations)
}

// UpPostgres applies the Postgres catalog migrations to db.
func UpPostgres(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(Postgres, "postgres")
	if err != nil {
		return err
	}
	return up(ctx, goose.DialectPostgres, db, fsys)
}

func up(ctx context.Context, dialect goose.Dialect, db *sql.DB, fsys fs.FS) error {
	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return fmt.Errorf("migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	return nil
}
