// Package services contains the application services of the vault client:
// key management, attachment import and the encrypted-attachment export
// pipeline.
package services

import (
	"context"

	"github.com/dmitrijs2005/vaultexport/internal/client/models"
	"github.com/dmitrijs2005/vaultexport/internal/cryptoworker"
	"github.com/dmitrijs2005/vaultexport/internal/cryptox"
)

// CryptoClient is the crypto worker as seen by the services. It is
// satisfied by *cryptoworker.Client.
type CryptoClient interface {
	Encrypt(ctx context.Context, key *cryptox.Key, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, key *cryptox.Key, sealed []byte) ([]byte, error)
	DeriveKey(ctx context.Context, password, salt []byte) (*cryptox.Key, error)
	ExportKey(ctx context.Context, key *cryptox.Key) ([]byte, error)
	EncryptStream(ctx context.Context, key *cryptox.Key, source models.ChunkStream, sink cryptoworker.ChunkSink, streamID string) ([]byte, error)
	DecryptStream(ctx context.Context, key *cryptox.Key, iv []byte, source models.ChunkStream, sink cryptoworker.ChunkSink, streamID string) error
}

var _ CryptoClient = (*cryptoworker.Client)(nil)
