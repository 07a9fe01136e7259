// Package storage opens the local vault database, applies its migrations and
// wires the repositories on top of it. The attachment catalog can
// optionally live in Postgres instead.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/vaultexport/internal/client/migrations"
	"github.com/dmitrijs2005/vaultexport/internal/client/repositories/attachments"
	"github.com/dmitrijs2005/vaultexport/internal/client/repositories/blobs"
	"github.com/dmitrijs2005/vaultexport/internal/client/repositories/metadata"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Repositories struct {
	DB          *sql.DB
	Metadata    metadata.Repository
	Blobs       blobs.Repository
	Attachments attachments.Repository

	catalog *sql.DB
}

// InitDatabase opens the SQLite database at dsn and migrates it.
func InitDatabase(ctx context.Context, dsn string) (*Repositories, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	if err := migrations.Up(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repositories{
		DB:          db,
		Metadata:    metadata.NewSQLiteRepository(db),
		Blobs:       blobs.NewSQLiteRepository(db),
		Attachments: attachments.NewSQLiteRepository(db),
	}, nil
}

// UsePostgresCatalog moves the attachment catalog to the Postgres database at
// dsn. Metadata and chunks stay local.
func (r *Repositories) UsePostgresCatalog(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("catalog open error: %w", err)
	}

	if err := migrations.UpPostgres(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	if r.catalog != nil {
		_ = r.catalog.Close()
	}
	r.catalog = db
	r.Attachments = attachments.NewPostgresRepository(db)
	return nil
}

func (r *Repositories) Close() error {
	var errs []error
	if r.catalog != nil {
		errs = append(errs, r.catalog.Close())
	}
	errs = append(errs, r.DB.Close())
	return errors.Join(errs...)
}
