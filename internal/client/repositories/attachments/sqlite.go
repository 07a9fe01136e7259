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

// SQLiteRepository keeps the catalog in the local vault database.
// created_at is stored as unix milliseconds.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Create(ctx context.Context, rec *models.AttachmentRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO attachments (id, content_hash, display_filename, mime_type, declared_size,
		chunk_size, wrapped_key, iv, uploaded, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query, rec.ID, rec.ContentHash, rec.DisplayFilename, rec.MimeType,
		rec.DeclaredSize, rec.ChunkSize, rec.WrappedKey, rec.IV, rec.Uploaded, rec.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert attachment: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.AttachmentRecord, error) {
	rec, err := scanSQLite(r.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("attachment %s: %w", id, common.ErrorNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment %s: %w", id, err)
	}
	return &rec, nil
}

func (r *SQLiteRepository) FindByContentHash(ctx context.Context, contentHash string) (*models.AttachmentRecord, error) {
	rec, err := scanSQLite(r.db.QueryRowContext(ctx,
		selectColumns+` WHERE content_hash = ? ORDER BY created_at, id LIMIT 1`, contentHash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("content %s: %w", contentHash, common.ErrorNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find content %s: %w", contentHash, err)
	}
	return &rec, nil
}

func (r *SQLiteRepository) GetByIDs(ctx context.Context, ids []string) ([]models.AttachmentRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx,
		selectColumns+` WHERE id IN (`+placeholders(len(ids), false)+`)`, anyArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to get attachments: %w", err)
	}
	recs, err := collect(rows, scanSQLite)
	if err != nil {
		return nil, err
	}
	return inOrder(ids, recs), nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]models.AttachmentRecord, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+` ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	return collect(rows, scanSQLite)
}

func (r *SQLiteRepository) MarkUploaded(ctx context.Context, id string) error {
	err := dbx.ExecOne(ctx, r.db, common.ErrorNotFound, `UPDATE attachments SET uploaded = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark attachment %s uploaded: %w", id, err)
	}
	return nil
}

func scanSQLite(s scanner) (models.AttachmentRecord, error) {
	var rec models.AttachmentRecord
	var created int64
	err := s.Scan(&rec.ID, &rec.ContentHash, &rec.DisplayFilename, &rec.MimeType, &rec.DeclaredSize,
		&rec.ChunkSize, &rec.WrappedKey, &rec.IV, &rec.Uploaded, &created)
	if err != nil {
		return rec, err
	}
	rec.CreatedAt = time.UnixMilli(created).UTC()
	return rec, nil
}
