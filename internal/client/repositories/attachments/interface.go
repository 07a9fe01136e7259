// Package attachments is the catalog of encrypted attachments: metadata,
// wrapped keys and stream headers. The ciphertext itself lives in package
// blobs.
package attachments

import (
	"context"

	"github.com/dmitrijs2005/vaultexport/internal/client/models"
)

type Repository interface {
	Create(ctx context.Context, rec *models.AttachmentRecord) error

	// Get returns common.ErrorNotFound for an unknown id.
	Get(ctx context.Context, id string) (*models.AttachmentRecord, error)

	// FindByContentHash returns the oldest record of contentHash, or
	// common.ErrorNotFound.
	FindByContentHash(ctx context.Context, contentHash string) (*models.AttachmentRecord, error)

	// GetByIDs returns the known records among ids, in the order of ids.
	// Unknown ids are left out.
	GetByIDs(ctx context.Context, ids []string) ([]models.AttachmentRecord, error)

	// List returns every record, oldest first.
	List(ctx context.Context) ([]models.AttachmentRecord, error)

	MarkUploaded(ctx context.Context, id string) error
}
