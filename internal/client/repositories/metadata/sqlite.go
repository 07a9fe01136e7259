package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/vaultexport/internal/common"
	"github.com/dmitrijs2005/vaultexport/internal/dbx"
)

// SQLiteRepository keeps settings in the metadata table of the local vault.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const upsertSetting = `
	INSERT INTO metadata (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value`

func (r *SQLiteRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	switch err := r.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value); {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("setting %q: %w", key, common.ErrorNotFound)
	case err != nil:
		return nil, fmt.Errorf("reading setting %q: %w", key, err)
	}
	return value, nil
}

func (r *SQLiteRepository) Set(ctx context.Context, key string, value []byte) error {
	if _, err := r.db.ExecContext(ctx, upsertSetting, key, value); err != nil {
		return fmt.Errorf("writing setting %q: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepository) Lookup(ctx context.Context, keys ...string) (map[string][]byte, error) {
	found := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return found, nil
	}

	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	q := `SELECT key, value FROM metadata WHERE key IN (?` + strings.Repeat(", ?", len(keys)-1) + `)`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key   string
			value []byte
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("reading settings: %w", err)
		}
		found[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	return found, nil
}

func (r *SQLiteRepository) LoadKeyMaterial(ctx context.Context) (KeyMaterial, error) {
	m, err := r.Lookup(ctx, KeySalt, KeyVerifier)
	if err != nil {
		return KeyMaterial{}, err
	}
	salt, ok := m[KeySalt]
	if !ok {
		return KeyMaterial{}, fmt.Errorf("setting %q: %w", KeySalt, common.ErrorNotFound)
	}
	verifier, ok := m[KeyVerifier]
	if !ok {
		return KeyMaterial{}, fmt.Errorf("setting %q: %w", KeyVerifier, common.ErrorNotFound)
	}
	return KeyMaterial{Salt: salt, Verifier: verifier}, nil
}

// SaveKeyMaterial writes both values. Callers that need them to land
// together pass a transaction as the repository's DBTX.
func (r *SQLiteRepository) SaveKeyMaterial(ctx context.Context, km KeyMaterial) error {
	if err := r.Set(ctx, KeySalt, km.Salt); err != nil {
		return err
	}
	return r.Set(ctx, KeyVerifier, km.Verifier)
}
