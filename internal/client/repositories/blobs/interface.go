// Package blobs stores encrypted attachment content locally, as the ordered
// cipher chunks of one stream per content hash.
package blobs

import (
	"context"

	"github.com/dmitrijs2005/vaultexport/internal/client/models"
)

// Status describes how much of an attachment is stored locally.
type Status struct {
	// NextSeq is the sequence number of the first missing chunk.
	NextSeq int64
	// Complete is set once every chunk up to the final one is present.
	Complete bool
}

type Repository interface {
	// Append stores chunk seq of contentHash. Storing the same seq again
	// replaces it.
	Append(ctx context.Context, contentHash string, seq int64, chunk models.CipherChunk) error

	Status(ctx context.Context, contentHash string) (Status, error)

	// OpenReadStream returns the stored chunks in order. It fails with
	// common.ErrLocalDataNotAvailable when nothing is stored for contentHash.
	OpenReadStream(ctx context.Context, contentHash string) (models.ChunkStream, error)

	// Rekey moves every chunk stored under from to to. It fails if to
	// already holds chunks.
	Rekey(ctx context.Context, from, to string) error

	// DeleteCached drops every chunk of contentHash.
	DeleteCached(ctx context.Context, contentHash string) error
}
