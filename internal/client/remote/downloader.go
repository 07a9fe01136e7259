package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/vaultexport/internal/client/models"
	"github.com/dmitrijs2005/vaultexport/internal/client/repositories/blobs"
	"github.com/dmitrijs2005/vaultexport/internal/common"
	"github.com/dmitrijs2005/vaultexport/internal/cryptox"
	"github.com/dmitrijs2005/vaultexport/internal/logging"
	"github.com/sethvargo/go-retry"
)

const (
	DefaultRetries = 3
	DefaultBackoff = 200 * time.Millisecond
)

// Downloader copies remote ciphertext into local chunk storage.
type Downloader struct {
	fetcher ChunkFetcher
	store   blobs.Repository
	log     logging.Logger

	retries uint64
	backoff time.Duration
}

func NewDownloader(fetcher ChunkFetcher, store blobs.Repository, log logging.Logger, retries uint64, backoff time.Duration) *Downloader {
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	return &Downloader{fetcher: fetcher, store: store, log: log, retries: retries, backoff: backoff}
}

// ChunkCount is the number of sealed chunks of rec's stream. Every stream
// has at least one chunk.
func ChunkCount(rec models.AttachmentRecord) int64 {
	plain := rec.ChunkSize - cryptox.ChunkOverhead
	if plain <= 0 || rec.DeclaredSize <= 0 {
		return 1
	}
	return (rec.DeclaredSize + plain - 1) / plain
}

// sealedLen is the stored length of chunk seq.
func sealedLen(rec models.AttachmentRecord, seq, count int64) int64 {
	if seq < count-1 {
		return rec.ChunkSize
	}
	plain := rec.ChunkSize - cryptox.ChunkOverhead
	last := rec.DeclaredSize - (count-1)*plain
	if last < 0 {
		last = 0
	}
	return last + cryptox.ChunkOverhead
}

// Download fetches the chunks of rec that are not stored yet. It is a no-op
// for complete local copies.
func (d *Downloader) Download(ctx context.Context, rec models.AttachmentRecord, token string) error {
	if rec.ChunkSize <= cryptox.ChunkOverhead {
		return fmt.Errorf("attachment %s: invalid chunk size %d", rec.ID, rec.ChunkSize)
	}

	st, err := d.store.Status(ctx, rec.ContentHash)
	if err != nil {
		return err
	}
	if st.Complete {
		return nil
	}

	count := ChunkCount(rec)
	log := d.log.With("attachment_id", rec.ID, "content_hash", rec.ContentHash)
	if st.NextSeq > 0 {
		log.Debug(ctx, "resuming download", "next_chunk", st.NextSeq, "chunks", count)
	}

	for seq := st.NextSeq; seq < count; seq++ {
		offset := seq * rec.ChunkSize
		length := sealedLen(rec, seq, count)

		var data []byte
		err := retry.Do(ctx, retry.WithMaxRetries(d.retries, retry.NewExponential(d.backoff)), func(ctx context.Context) error {
			b, err := d.fetcher.FetchChunk(ctx, rec.ContentHash, offset, length, token)
			if err != nil {
				if errors.Is(err, common.ErrUnavailable) {
					log.Debug(ctx, "chunk fetch failed, retrying", "chunk", seq, "error", err)
					return retry.RetryableError(err)
				}
				return err
			}
			data = b
			return nil
		})
		if err != nil {
			return fmt.Errorf("downloading chunk %d of %s: %w", seq, rec.ContentHash, err)
		}

		chunk := models.CipherChunk{Data: data, Final: seq == count-1}
		if err := d.store.Append(ctx, rec.ContentHash, seq, chunk); err != nil {
			return err
		}
	}

	log.Debug(ctx, "download complete", "chunks", count)
	return nil
}
