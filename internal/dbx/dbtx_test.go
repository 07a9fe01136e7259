package dbx

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

var errNoChunk = errors.New("no such chunk")

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return db, mock
}

func TestWithTx(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name    string
		expect  func(m sqlmock.Sqlmock)
		fn      func(ctx context.Context, tx DBTX) error
		wantErr error
	}{
		{
			name: "commit",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectBegin()
				m.ExpectExec("DELETE FROM attachment_chunks").WillReturnResult(sqlmock.NewResult(0, 3))
				m.ExpectCommit()
			},
			fn: func(ctx context.Context, tx DBTX) error {
				_, err := tx.ExecContext(ctx, "DELETE FROM attachment_chunks WHERE content_hash = ?", "h")
				return err
			},
		},
		{
			name: "rollback on error",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectBegin()
				m.ExpectRollback()
			},
			fn:      func(context.Context, DBTX) error { return boom },
			wantErr: boom,
		},
		{
			name: "commit failure",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectBegin()
				m.ExpectCommit().WillReturnError(boom)
			},
			fn:      func(context.Context, DBTX) error { return nil },
			wantErr: boom,
		},
		{
			name: "begin failure",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectBegin().WillReturnError(boom)
			},
			fn: func(context.Context, DBTX) error {
				return errors.New("fn ran without a transaction")
			},
			wantErr: boom,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMock(t)
			tc.expect(mock)

			err := WithTx(context.Background(), db, nil, tc.fn)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.PanicsWithValue(t, "kaput", func() {
		_ = WithTx(context.Background(), db, nil, func(context.Context, DBTX) error {
			panic("kaput")
		})
	})
}

func TestExecOne(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "dbx.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	_, err = db.Exec(`CREATE TABLE attachment_chunks (content_hash TEXT, seq INTEGER, uploaded INTEGER DEFAULT 0)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO attachment_chunks (content_hash, seq) VALUES ('h', 0), ('h', 1)`)
	require.NoError(t, err)

	const mark = `UPDATE attachment_chunks SET uploaded = 1 WHERE content_hash = ? AND seq = ?`
	require.NoError(t, ExecOne(ctx, db, errNoChunk, mark, "h", 0))
	assert.ErrorIs(t, ExecOne(ctx, db, errNoChunk, mark, "h", 7), errNoChunk)
	assert.ErrorContains(t,
		ExecOne(ctx, db, errNoChunk, `UPDATE attachment_chunks SET uploaded = 1 WHERE content_hash = ?`, "h"),
		"expected 1 affected row, got 2")
}

func TestExecOne_RowsAffectedError(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec("UPDATE").WillReturnResult(sqlmock.NewErrorResult(errors.New("driver says no")))

	err := ExecOne(context.Background(), db, errNoChunk, "UPDATE attachment_chunks SET uploaded = 1")
	assert.ErrorContains(t, err, "failed to get rows affected")
}
