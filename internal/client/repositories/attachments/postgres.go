package attachments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/vaultexport/internal/client/models"
	"github.com/dmitrijs2005/vaultexport/internal/common"
	"github.com/dmitrijs2005/vaultexport/internal/dbx"
)

// PostgresRepository keeps the catalog in a shared Postgres database, opened
// with the pgx stdlib driver.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, rec *models.AttachmentRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query :=
		`INSERT INTO attachments (id, content_hash, display_filename, mime_type, declared_size,
		 chunk_size, wrapped_key, iv, uploaded, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.ExecContext(ctx, query, rec.ID, rec.ContentHash, rec.DisplayFilename, rec.MimeType,
		rec.DeclaredSize, rec.ChunkSize, rec.WrappedKey, rec.IV, rec.Uploaded, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.AttachmentRecord, error) {
	rec, err := scanPostgres(r.db.QueryRowContext(ctx, selectColumns+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("attachment %s: %w", id, common.ErrorNotFound)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &rec, nil
}

func (r *PostgresRepository) FindByContentHash(ctx context.Context, contentHash string) (*models.AttachmentRecord, error) {
	rec, err := scanPostgres(r.db.QueryRowContext(ctx,
		selectColumns+` WHERE content_hash = $1 ORDER BY created_at, id LIMIT 1`, contentHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("content %s: %w", contentHash, common.ErrorNotFound)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &rec, nil
}

func (r *PostgresRepository) GetByIDs(ctx context.Context, ids []string) ([]models.AttachmentRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx,
		selectColumns+` WHERE id IN (`+placeholders(len(ids), true)+`)`, anyArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	recs, err := collect(rows, scanPostgres)
	if err != nil {
		return nil, err
	}
	return inOrder(ids, recs), nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]models.AttachmentRecord, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+` ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return collect(rows, scanPostgres)
}

func (r *PostgresRepository) MarkUploaded(ctx context.Context, id string) error {
	err := dbx.ExecOne(ctx, r.db, common.ErrorNotFound, `UPDATE attachments SET uploaded = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark attachment %s uploaded: %w", id, err)
	}
	return nil
}

func scanPostgres(s scanner) (models.AttachmentRecord, error) {
	var rec models.AttachmentRecord
	err := s.Scan(&rec.ID, &rec.ContentHash, &rec.DisplayFilename, &rec.MimeType, &rec.DeclaredSize,
		&rec.ChunkSize, &rec.WrappedKey, &rec.IV, &rec.Uploaded, &rec.CreatedAt)
	return rec, err
}
