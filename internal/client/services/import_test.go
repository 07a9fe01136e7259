package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/dmitrijs2005/vaultexport/internal/client/models"
	"github.com/dmitrijs2005/vaultexport/internal/client/repositories/attachments"
	"github.com/dmitrijs2005/vaultexport/internal/common"
	"github.com/dmitrijs2005/vaultexport/internal/cryptox"
	"github.com/dmitrijs2005/vaultexport/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImport_Record(t *testing.T) {
	v := newVault(t)
	content := strings.Repeat("0123456789", 5)

	rec := v.add(t, "digits.txt", content)

	sum := sha256.Sum256([]byte(content))
	assert.Equal(t, hex.EncodeToString(sum[:]), rec.ContentHash)
	assert.Equal(t, "digits.txt", rec.DisplayFilename)
	assert.Equal(t, "text/plain", rec.MimeType)
	assert.EqualValues(t, len(content), rec.DeclaredSize)
	assert.EqualValues(t, 16+cryptox.ChunkOverhead, rec.ChunkSize)
	assert.Len(t, rec.IV, cryptox.HeaderSize)
	assert.False(t, rec.Uploaded)

	st, err := v.store.Status(context.Background(), rec.ContentHash)
	require.NoError(t, err)
	assert.True(t, st.Complete)
	assert.EqualValues(t, 4, st.NextSeq)

	stored, err := v.catalog.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ContentHash, stored.ContentHash)
	assert.Equal(t, rec.WrappedKey, stored.WrappedKey)
}

func TestImport_DefaultMimeType(t *testing.T) {
	v := newVault(t)
	rec, err := v.imports.Import(context.Background(), v.master, bytes.NewReader([]byte("x")), "x.bin", "")
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", rec.MimeType)
}

func TestImport_SharesExistingContent(t *testing.T) {
	ctx := context.Background()
	v := newVault(t)

	first := v.add(t, "a.txt", "shared")
	require.NoError(t, v.imports.MarkUploaded(ctx, first.ID))
	second := v.add(t, "b.txt", "shared")

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.ContentHash, second.ContentHash)
	assert.Equal(t, first.WrappedKey, second.WrappedKey)
	assert.Equal(t, first.IV, second.IV)
	assert.True(t, second.Uploaded)

	var pending int
	require.NoError(t, v.db.QueryRow(`SELECT COUNT(*) FROM attachment_chunks WHERE content_hash LIKE 'pending-%'`).Scan(&pending))
	assert.Zero(t, pending)

	all, err := v.imports.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestImport_ReadFailureLeavesNothing(t *testing.T) {
	v := newVault(t)

	_, err := v.imports.Import(context.Background(), v.master, failingReader{}, "x", "")
	require.Error(t, err)

	var chunks int
	require.NoError(t, v.db.QueryRow(`SELECT COUNT(*) FROM attachment_chunks`).Scan(&chunks))
	assert.Zero(t, chunks)

	all, err := v.imports.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestImport_UnknownID(t *testing.T) {
	err := newVault(t).imports.MarkUploaded(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

// flakyCatalog fails the next failCreates calls to Create.
type flakyCatalog struct {
	attachments.Repository
	failCreates int
}

func (c *flakyCatalog) Create(ctx context.Context, rec *models.AttachmentRecord) error {
	if c.failCreates > 0 {
		c.failCreates--
		return errors.New("catalog offline")
	}
	return c.Repository.Create(ctx, rec)
}

func countChunks(t *testing.T, v *vault) int {
	t.Helper()
	var n int
	require.NoError(t, v.db.QueryRow(`SELECT COUNT(*) FROM attachment_chunks`).Scan(&n))
	return n
}

func TestImport_FailedCreateCanBeRetried(t *testing.T) {
	ctx := context.Background()
	v := newVault(t)
	catalog := &flakyCatalog{Repository: v.catalog, failCreates: 1}
	imports := NewImportService(v.crypto, v.keyring, catalog, v.store, cryptox.HashSHA256, 16, logging.Discard())

	content := []byte(strings.Repeat("retry me ", 4))

	_, err := imports.Import(ctx, v.master, bytes.NewReader(content), "r.txt", "")
	require.ErrorContains(t, err, "catalog offline")
	assert.Zero(t, countChunks(t, v), "no chunks without a record")

	rec, err := imports.Import(ctx, v.master, bytes.NewReader(content), "r.txt", "")
	require.NoError(t, err)

	st, err := v.store.Status(ctx, rec.ContentHash)
	require.NoError(t, err)
	assert.True(t, st.Complete)

	entries := drainEntries(t, v.exporter().Entries([]models.AttachmentRecord{*rec}))
	require.Len(t, entries, 1)
	assert.Equal(t, content, entries[0].Data)
}

func TestImport_ReplacesLeftoverChunks(t *testing.T) {
	ctx := context.Background()
	v := newVault(t)
	content := "left behind by a crash"

	sum := sha256.Sum256([]byte(content))
	hash := hex.EncodeToString(sum[:])
	for seq := int64(0); seq < 5; seq++ {
		require.NoError(t, v.store.Append(ctx, hash, seq, models.CipherChunk{Data: []byte("stale"), Final: seq == 4}))
	}

	rec := v.add(t, "c.txt", content)
	assert.Equal(t, hash, rec.ContentHash)

	entries := drainEntries(t, v.exporter().Entries([]models.AttachmentRecord{*rec}))
	require.Len(t, entries, 1)
	assert.Equal(t, []byte(content), entries[0].Data)
}
