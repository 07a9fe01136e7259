package services

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/vaultexport/internal/client/models"
	"github.com/dmitrijs2005/vaultexport/internal/client/repositories/attachments"
	"github.com/dmitrijs2005/vaultexport/internal/client/repositories/blobs"
	"github.com/dmitrijs2005/vaultexport/internal/common"
	"github.com/dmitrijs2005/vaultexport/internal/cryptoworker"
	"github.com/dmitrijs2005/vaultexport/internal/cryptox"
	"github.com/dmitrijs2005/vaultexport/internal/logging"
	"github.com/google/uuid"
)

const defaultMimeType = "application/octet-stream"

// ImportService encrypts files into the local vault.
type ImportService struct {
	crypto    CryptoClient
	keyring   *Keyring
	catalog   attachments.Repository
	store     blobs.Repository
	hashAlg   string
	chunkSize int
	log       logging.Logger
}

func NewImportService(crypto CryptoClient, keyring *Keyring, catalog attachments.Repository, store blobs.Repository,
	hashAlg string, chunkSize int, log logging.Logger) *ImportService {
	if chunkSize <= 0 {
		chunkSize = common.DefaultChunkSize
	}
	if hashAlg == "" {
		hashAlg = cryptox.HashSHA256
	}
	return &ImportService{crypto: crypto, keyring: keyring, catalog: catalog, store: store,
		hashAlg: hashAlg, chunkSize: chunkSize, log: log}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Import encrypts r under a fresh attachment key and records it under
// filename. Content already in the vault is stored once: the new record
// shares the existing ciphertext, key and header.
func (s *ImportService) Import(ctx context.Context, master *cryptox.Key, r io.Reader, filename, mimeType string) (*models.AttachmentRecord, error) {
	hasher, err := cryptox.NewHasher(s.hashAlg)
	if err != nil {
		return nil, err
	}
	if mimeType == "" {
		mimeType = defaultMimeType
	}

	fileKey := cryptox.GenerateKey()
	defer fileKey.Wipe()

	pending := "pending-" + uuid.NewString()
	var seq int64
	sink := func(ctx context.Context, chunk models.CipherChunk) error {
		if err := s.store.Append(ctx, pending, seq, chunk); err != nil {
			return err
		}
		seq++
		return nil
	}

	src := &countingReader{r: io.TeeReader(r, hasher)}
	iv, err := s.crypto.EncryptStream(ctx, fileKey, cryptoworker.ReaderSource(src, s.chunkSize), sink, uuid.NewString())
	if err != nil {
		s.dropChunks(ctx, pending)
		return nil, fmt.Errorf("encryption error: %w", err)
	}

	rec := &models.AttachmentRecord{
		ID:              uuid.NewString(),
		ContentHash:     hex.EncodeToString(hasher.Sum(nil)),
		DisplayFilename: filename,
		MimeType:        mimeType,
		DeclaredSize:    src.n,
		ChunkSize:       int64(s.chunkSize) + cryptox.ChunkOverhead,
		IV:              iv,
		CreatedAt:       time.Now().UTC(),
	}

	existing, err := s.catalog.FindByContentHash(ctx, rec.ContentHash)
	switch {
	case err == nil:
		s.dropChunks(ctx, pending)
		rec.WrappedKey = existing.WrappedKey
		rec.IV = existing.IV
		rec.ChunkSize = existing.ChunkSize
		rec.Uploaded = existing.Uploaded
		if err := s.catalog.Create(ctx, rec); err != nil {
			return nil, fmt.Errorf("saving error: %w", err)
		}
		s.log.Debug(ctx, "content already stored", "content_hash", rec.ContentHash, "shared_with", existing.ID)

	case errors.Is(err, common.ErrorNotFound):
		if err := s.storeNew(ctx, master, fileKey, pending, rec); err != nil {
			return nil, err
		}

	default:
		s.dropChunks(ctx, pending)
		return nil, err
	}

	s.log.Info(ctx, "attachment imported", "attachment_id", rec.ID, "bytes", rec.DeclaredSize)
	return rec, nil
}

// storeNew moves the pending chunks under rec.ContentHash and records rec.
// Chunks under the hash that no record references are leftovers of an
// interrupted import and are replaced. On failure nothing stays behind.
func (s *ImportService) storeNew(ctx context.Context, master, fileKey *cryptox.Key, pending string, rec *models.AttachmentRecord) error {
	wrapped, err := s.keyring.WrapAttachmentKey(ctx, master, fileKey)
	if err != nil {
		s.dropChunks(ctx, pending)
		return fmt.Errorf("key wrap error: %w", err)
	}
	rec.WrappedKey = wrapped

	if err := s.store.DeleteCached(ctx, rec.ContentHash); err != nil {
		s.dropChunks(ctx, pending)
		return err
	}
	if err := s.store.Rekey(ctx, pending, rec.ContentHash); err != nil {
		s.dropChunks(ctx, pending)
		return err
	}

	if err := s.catalog.Create(ctx, rec); err != nil {
		s.dropChunks(ctx, rec.ContentHash)
		return fmt.Errorf("saving error: %w", err)
	}
	return nil
}

func (s *ImportService) dropChunks(ctx context.Context, key string) {
	if err := s.store.DeleteCached(context.WithoutCancel(ctx), key); err != nil {
		s.log.Warn(ctx, "failed to drop chunks", "key", key, "error", err)
	}
}

// MarkUploaded records that the ciphertext of id is stored remotely, so
// exports may drop the local copy.
func (s *ImportService) MarkUploaded(ctx context.Context, id string) error {
	return s.catalog.MarkUploaded(ctx, id)
}

// List returns every attachment in the catalog.
func (s *ImportService) List(ctx context.Context) ([]models.AttachmentRecord, error) {
	return s.catalog.List(ctx)
}
