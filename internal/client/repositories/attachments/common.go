package attachments

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/vaultexport/internal/client/models"
)

const selectColumns = `SELECT id, content_hash, display_filename, mime_type, declared_size,
	chunk_size, wrapped_key, iv, uploaded, created_at FROM attachments`

type scanner interface {
	Scan(dest ...any) error
}

// placeholders renders n bind parameters, e.g. "$1, $2"
// or "?, ?".
func placeholders(n int, numbered bool) string {
	parts := make([]string, n)
	for i := range parts {
		if numbered {
			parts[i] = fmt.Sprintf("$%d", i+1)
		} else {
			parts[i] = "?"
		}
	}
	return strings.Join(parts, ", ")
}

func anyArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// inOrder arranges recs in the order of ids, dropping ids without a record.
func inOrder(ids []string, recs []models.AttachmentRecord) []models.AttachmentRecord {
	byID := make(map[string]models.AttachmentRecord, len(recs))
	for _, r := range recs {
		byID[r.ID] = r
	}
	out := make([]models.AttachmentRecord, 0, len(ids))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

func collect(rows *sql.Rows, scan func(scanner) (models.AttachmentRecord, error)) ([]models.AttachmentRecord, error) {
	defer rows.Close()

	var out []models.AttachmentRecord
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attachment row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attachment rows: %w", err)
	}
	return out, nil
}
