package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/dmitrijs2005/vaultexport/internal/client/models"
	"github.com/dmitrijs2005/vaultexport/internal/client/repositories/attachments"
	"github.com/dmitrijs2005/vaultexport/internal/client/repositories/blobs"
	"github.com/dmitrijs2005/vaultexport/internal/cryptoworker"
	"github.com/dmitrijs2005/vaultexport/internal/cryptox"
	"github.com/dmitrijs2005/vaultexport/internal/logging"
	"github.com/dmitrijs2005/vaultexport/internal/pathx"
	"github.com/dmitrijs2005/vaultexport/internal/zipx"
	"github.com/google/uuid"
)

// maxPresize bounds the buffer reserved up front from the catalog's declared
// size. Larger plaintexts grow the buffer as chunks arrive.
const maxPresize = 64 << 20

// NamingMode selects the archive path of an exported attachment.
type NamingMode string

const (
	// NamingHash names members after the content hash.
	NamingHash NamingMode = "hash"
	// NamingFilename names members after the display filename.
	NamingFilename NamingMode = "filename"
)

func ParseNamingMode(s string) (NamingMode, error) {
	switch NamingMode(s) {
	case NamingHash, "":
		return NamingHash, nil
	case NamingFilename:
		return NamingFilename, nil
	}
	return "", fmt.Errorf("unknown naming mode %q", s)
}

type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

type Downloader interface {
	Download(ctx context.Context, rec models.AttachmentRecord, token string) error
}

type OnlineChecker interface {
	Online(ctx context.Context) bool
}

// Exporter turns attachment records into archive entries.
type Exporter struct {
	crypto  CryptoClient
	store   blobs.Repository
	keyring *Keyring
	master  *cryptox.Key

	downloader Downloader
	tokens     TokenProvider
	naming     NamingMode
	progress   models.ProgressFunc
	log        logging.Logger
}

type ExportOption func(*Exporter)

// WithDownloader enables fetching missing ciphertext. tokens may be nil.
func WithDownloader(d Downloader, tokens TokenProvider) ExportOption {
	return func(e *Exporter) {
		e.downloader = d
		e.tokens = tokens
	}
}

func WithNaming(m NamingMode) ExportOption {
	return func(e *Exporter) { e.naming = m }
}

// WithProgress registers fn to receive one Progress per attachment.
func WithProgress(fn models.ProgressFunc) ExportOption {
	return func(e *Exporter) { e.progress = fn }
}

func WithExportLogger(l logging.Logger) ExportOption {
	return func(e *Exporter) { e.log = l }
}

func NewExporter(crypto CryptoClient, store blobs.Repository, keyring *Keyring, master *cryptox.Key, opts ...ExportOption) *Exporter {
	e := &Exporter{
		crypto:  crypto,
		store:   store,
		keyring: keyring,
		master:  master,
		naming:  NamingHash,
		log:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// offline returns a copy of e that never downloads.
func (e *Exporter) offline() *Exporter {
	c := *e
	c.downloader = nil
	c.tokens = nil
	return &c
}

// Entries returns an iterator over the archive entries of records. Records
// are processed one at a time in order; each Next call does the work for as
// many records as it takes to produce one entry.
func (e *Exporter) Entries(records []models.AttachmentRecord) *EntryIterator {
	return &EntryIterator{
		ex:      e,
		records: records,
		paths:   pathx.NewUniquifier(),
	}
}

// EntryIterator yields one ZipEntry per exportable attachment. Attachments
// that cannot be exported are reported to the progress callback and
// skipped; Next then continues with the following record.
type EntryIterator struct {
	ex      *Exporter
	records []models.AttachmentRecord
	pos     int
	paths   *pathx.Uniquifier
}

// Next returns the next entry, io.EOF after the last record, or an error
// that ends the export (worker unavailable, context done).
func (it *EntryIterator) Next(ctx context.Context) (models.ZipEntry, error) {
	for it.pos < len(it.records) {
		idx := it.pos
		rec := it.records[idx]
		it.pos++

		log := it.ex.log.With("attachment_id", rec.ID)

		entry, err := it.export(ctx, rec, log)
		if err != nil {
			if ctx.Err() != nil {
				return models.ZipEntry{}, ctx.Err()
			}
			if isFatal(ctx, err) {
				return models.ZipEntry{}, err
			}
			log.Warn(ctx, "attachment skipped", "error", err)
			it.report(models.Progress{
				Index: idx, Total: len(it.records), AttachmentID: rec.ID,
				Status: models.ProgressSkipped, Err: err,
			})
			continue
		}

		log.Debug(ctx, "attachment exported", "path", entry.Path, "bytes", len(entry.Data))
		it.report(models.Progress{
			Index: idx, Total: len(it.records), AttachmentID: rec.ID,
			Status: models.ProgressExported, Path: entry.Path, Bytes: int64(len(entry.Data)),
		})
		return entry, nil
	}
	return models.ZipEntry{}, io.EOF
}

func (it *EntryIterator) report(p models.Progress) {
	if it.ex.progress != nil {
		it.ex.progress(p)
	}
}

func (it *EntryIterator) export(ctx context.Context, rec models.AttachmentRecord, log logging.Logger) (models.ZipEntry, error) {
	if err := it.fetch(ctx, rec, log); err != nil {
		return models.ZipEntry{}, err
	}

	blob, err := it.decrypt(ctx, rec)
	if err != nil {
		return models.ZipEntry{}, err
	}

	if rec.Uploaded {
		if err := it.ex.store.DeleteCached(ctx, rec.ContentHash); err != nil {
			log.Warn(ctx, "failed to drop cached ciphertext", "error", err)
		}
	}

	name, err := it.paths.Add(it.ex.memberName(rec), pathx.StrategySuffix)
	if err != nil {
		return models.ZipEntry{}, err
	}
	return models.ZipEntry{Path: name, Data: blob.Data}, nil
}

// fetch downloads the ciphertext of rec if the local copy is incomplete.
// Download failures are logged only: a missing local copy is detected when
// it is opened.
func (it *EntryIterator) fetch(ctx context.Context, rec models.AttachmentRecord, log logging.Logger) error {
	if it.ex.downloader == nil {
		return nil
	}

	st, err := it.ex.store.Status(ctx, rec.ContentHash)
	if err != nil {
		return err
	}
	if st.Complete {
		return nil
	}

	var token string
	if it.ex.tokens != nil {
		token, err = it.ex.tokens.Token(ctx)
	}
	if err == nil {
		err = it.ex.downloader.Download(ctx, rec, token)
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn(ctx, "download failed", "error", err)
	}
	return nil
}

func (it *EntryIterator) decrypt(ctx context.Context, rec models.AttachmentRecord) (models.DecryptedBlob, error) {
	stream, err := it.ex.store.OpenReadStream(ctx, rec.ContentHash)
	if err != nil {
		return models.DecryptedBlob{}, err
	}
	defer stream.Close()

	key, err := it.ex.keyring.UnwrapAttachmentKey(ctx, it.ex.master, rec.WrappedKey)
	if err != nil {
		return models.DecryptedBlob{}, err
	}
	defer key.Wipe()

	var buf bytes.Buffer
	buf.Grow(int(min(max(rec.DeclaredSize, 0), maxPresize)))
	err = it.ex.crypto.DecryptStream(ctx, key, rec.IV, stream, cryptoworker.BufferSink(&buf), uuid.NewString())
	if err != nil {
		return models.DecryptedBlob{}, err
	}
	return models.DecryptedBlob{Data: buf.Bytes(), MimeType: rec.MimeType}, nil
}

func (e *Exporter) memberName(rec models.AttachmentRecord) string {
	if e.naming == NamingFilename {
		name := strings.ReplaceAll(rec.DisplayFilename, "\\", "/")
		name = path.Clean("/" + name)
		if name != "/" {
			return name
		}
	}
	return "/" + rec.ContentHash
}

// ExportService resolves attachment ids and streams their archive.
type ExportService struct {
	catalog  attachments.Repository
	exporter *Exporter
	probe    OnlineChecker
	level    int
	log      logging.Logger
}

// NewExportService builds the service. probe may be nil, in which case the
// backend is assumed reachable.
func NewExportService(catalog attachments.Repository, exporter *Exporter, probe OnlineChecker, level int, log logging.Logger) *ExportService {
	return &ExportService{catalog: catalog, exporter: exporter, probe: probe, level: level, log: log}
}

// ExportAttachments streams a zip archive of the attachments named by refs,
// or of every attachment when refs is empty. The archive is produced while
// it is read; closing the reader stops the export.
func (s *ExportService) ExportAttachments(ctx context.Context, refs []string) (io.ReadCloser, error) {
	var records []models.AttachmentRecord
	var err error
	if len(refs) == 0 {
		records, err = s.catalog.List(ctx)
	} else {
		records, err = s.catalog.GetByIDs(ctx, refs)
	}
	if err != nil {
		return nil, fmt.Errorf("resolving attachments: %w", err)
	}

	if len(records) < len(refs) {
		known := make(map[string]bool, len(records))
		for _, r := range records {
			known[r.ID] = true
		}
		for _, id := range refs {
			if !known[id] {
				s.log.Warn(ctx, "unknown attachment", "attachment_id", id)
			}
		}
	}

	exporter := s.exporter
	if exporter.downloader != nil && s.probe != nil && !s.probe.Online(ctx) {
		s.log.Warn(ctx, "backend unreachable, exporting cached attachments only")
		exporter = exporter.offline()
	}

	s.log.Info(ctx, "export started", "attachments", len(records))
	return zipx.NewStream(ctx, exporter.Entries(records), s.level), nil
}
