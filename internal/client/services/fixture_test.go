package services

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"sync"
	"testing"

	"github.com/dmitrijs2005/vaultexport/internal/client/models"
	"github.com/dmitrijs2005/vaultexport/internal/client/repositories/attachments"
	"github.com/dmitrijs2005/vaultexport/internal/client/repositories/blobs"
	"github.com/dmitrijs2005/vaultexport/internal/client/storage/storagetest"
	"github.com/dmitrijs2005/vaultexport/internal/cryptoworker"
	"github.com/dmitrijs2005/vaultexport/internal/cryptox"
	"github.com/dmitrijs2005/vaultexport/internal/logging"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
)

type vault struct {
	db      *sql.DB
	crypto  *cryptoworker.Client
	keyring *Keyring
	master  *cryptox.Key
	catalog *attachments.SQLiteRepository
	store   *blobs.SQLiteRepository
	imports *ImportService
}

func newVault(t *testing.T) *vault {
	t.Helper()
	db := storagetest.Open(t)

	crypto := cryptoworker.NewClient()
	t.Cleanup(func() { _ = crypto.Close() })

	keyring := NewKeyring(crypto, db)
	master, err := keyring.Init(context.Background(), []byte("correct horse"))
	require.NoError(t, err)

	v := &vault{
		db:      db,
		crypto:  crypto,
		keyring: keyring,
		master:  master,
		catalog: attachments.NewSQLiteRepository(db),
		store:   blobs.NewSQLiteRepository(db),
	}
	// small chunks so every test file spans several of them
	v.imports = NewImportService(crypto, keyring, v.catalog, v.store, cryptox.HashSHA256, 16, logging.Discard())
	return v
}

func (v *vault) add(t *testing.T, name, content string) *models.AttachmentRecord {
	t.Helper()
	rec, err := v.imports.Import(context.Background(), v.master, bytes.NewReader([]byte(content)), name, "text/plain")
	require.NoError(t, err)
	return rec
}

func (v *vault) exporter(opts ...ExportOption) *Exporter {
	return NewExporter(v.crypto, v.store, v.keyring, v.master, opts...)
}

type zipMember struct {
	Name string
	Data string
}

func unzip(t *testing.T, r io.Reader) []zipMember {
	t.Helper()
	b, err := io.ReadAll(r)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	require.NoError(t, err)

	var out []zipMember
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		out = append(out, zipMember{Name: f.Name, Data: string(data)})
	}
	return out
}

type progressLog struct {
	mu    sync.Mutex
	items []models.Progress
}

func (p *progressLog) record(pr models.Progress) {
	p.mu.Lock()
	p.items = append(p.items, pr)
	p.mu.Unlock()
}

func (p *progressLog) all() []models.Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Progress(nil), p.items...)
}

// chunkCopier is a Downloader that copies chunks from a second store.
type chunkCopier struct {
	from  blobs.Repository
	to    blobs.Repository
	err   error
	calls []string
	mu    sync.Mutex
}

func (c *chunkCopier) Download(ctx context.Context, rec models.AttachmentRecord, token string) error {
	c.mu.Lock()
	c.calls = append(c.calls, rec.ID+"|"+token)
	c.mu.Unlock()
	if c.err != nil {
		return c.err
	}

	s, err := c.from.OpenReadStream(ctx, rec.ContentHash)
	if err != nil {
		return err
	}
	for seq := int64(0); ; seq++ {
		chunk, err := s.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := c.to.Append(ctx, rec.ContentHash, seq, chunk); err != nil {
			return err
		}
	}
}

type staticToken struct {
	token string
	calls int
}

func (s *staticToken) Token(context.Context) (string, error) {
	s.calls++
	return s.token, nil
}

type fixedProbe bool

func (p fixedProbe) Online(context.Context) bool { return bool(p) }
