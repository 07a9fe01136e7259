package blobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/vaultexport/internal/client/models"
	"github.com/dmitrijs2005/vaultexport/internal/common"
	"github.com/dmitrijs2005/vaultexport/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Append(ctx context.Context, contentHash string, seq int64, chunk models.CipherChunk) error {
	query := `INSERT INTO attachment_chunks (content_hash, seq, payload, final)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(content_hash, seq) DO UPDATE SET payload = excluded.payload, final = excluded.final`

	if _, err := r.db.ExecContext(ctx, query, contentHash, seq, chunk.Data, chunk.Final); err != nil {
		return fmt.Errorf("failed to store chunk %d of %s: %w", seq, contentHash, err)
	}
	return nil
}

func (r *SQLiteRepository) Status(ctx context.Context, contentHash string) (Status, error) {
	query := `SELECT COUNT(*), COALESCE(MAX(seq), -1), COALESCE(MAX(final), 0)
		FROM attachment_chunks WHERE content_hash = ?`

	var count, maxSeq int64
	var final bool
	if err := r.db.QueryRowContext(ctx, query, contentHash).Scan(&count, &maxSeq, &final); err != nil {
		return Status{}, fmt.Errorf("failed to get chunk status of %s: %w", contentHash, err)
	}

	// Chunks are appended in order, so a gap means an interrupted rewrite;
	// resume from the first missing seq.
	if count != maxSeq+1 {
		next, err := r.firstGap(ctx, contentHash)
		if err != nil {
			return Status{}, err
		}
		return Status{NextSeq: next}, nil
	}

	return Status{NextSeq: count, Complete: final}, nil
}

func (r *SQLiteRepository) firstGap(ctx context.Context, contentHash string) (int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT seq FROM attachment_chunks WHERE content_hash = ? ORDER BY seq`, contentHash)
	if err != nil {
		return 0, fmt.Errorf("failed to list chunks of %s: %w", contentHash, err)
	}
	defer rows.Close()

	var want int64
	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return 0, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		if seq != want {
			break
		}
		want++
	}
	return want, rows.Err()
}

func (r *SQLiteRepository) OpenReadStream(ctx context.Context, contentHash string) (models.ChunkStream, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attachment_chunks WHERE content_hash = ?`, contentHash).Scan(&n)
	if err != nil {
		return nil, fmt.Errorf("failed to open chunks of %s: %w", contentHash, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%s: %w", contentHash, common.ErrLocalDataNotAvailable)
	}
	return &chunkStream{db: r.db, contentHash: contentHash}, nil
}

func (r *SQLiteRepository) Rekey(ctx context.Context, from, to string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE attachment_chunks SET content_hash = ? WHERE content_hash = ?`, to, from); err != nil {
		return fmt.Errorf("failed to move chunks of %s to %s: %w", from, to, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteCached(ctx context.Context, contentHash string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM attachment_chunks WHERE content_hash = ?`, contentHash); err != nil {
		return fmt.Errorf("failed to delete chunks of %s: %w", contentHash, err)
	}
	return nil
}

// chunkStream loads one chunk per Next call, so only the chunk in flight is
// held in memory.
type chunkStream struct {
	db          dbx.DBTX
	contentHash string
	seq         int64
	done        bool
}

func (s *chunkStream) Next(ctx context.Context) (models.CipherChunk, error) {
	if s.done {
		return models.CipherChunk{}, io.EOF
	}

	var chunk models.CipherChunk
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, final FROM attachment_chunks WHERE content_hash = ? AND seq = ?`,
		s.contentHash, s.seq).Scan(&chunk.Data, &chunk.Final)
	if errors.Is(err, sql.ErrNoRows) {
		s.done = true
		return models.CipherChunk{}, io.EOF
	}
	if err != nil {
		return models.CipherChunk{}, fmt.Errorf("failed to read chunk %d of %s: %w", s.seq, s.contentHash, err)
	}

	s.seq++
	s.done = chunk.Final
	return chunk, nil
}

func (s *chunkStream) Close() error {
	s.done = true
	return nil
}
