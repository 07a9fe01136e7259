// Package models defines the client-side data types shared by the export
// pipeline: attachment records, cipher chunks, decrypted blobs and archive
// entries.
package models

import (
	"context"
	"time"
)

// AttachmentRecord describes one encrypted attachment. Records are owned by
// the attachment catalog; the export pipeline only reads them.
type AttachmentRecord struct {
	ID string

	// ContentHash is the hex digest of the plaintext and the storage key of
	// the encrypted chunks, locally and remotely.
	ContentHash string

	DisplayFilename string
	MimeType        string

	// DeclaredSize is the plaintext size in bytes.
	DeclaredSize int64

	// ChunkSize is the size of one encrypted chunk as stored remotely. The
	// last chunk may be shorter.
	ChunkSize int64

	// WrappedKey is the attachment key encrypted under the master key.
	WrappedKey []byte

	// IV is the cipher stream header produced when the attachment was
	// encrypted.
	IV []byte

	// Uploaded marks attachments durably stored remotely; their local
	// ciphertext may be dropped after use.
	Uploaded bool

	CreatedAt time.Time
}

// CipherChunk is one unit of a chunked cipher stream. Sending a chunk hands
// over its Data: the sender must not read or modify the slice afterwards.
type CipherChunk struct {
	Data  []byte
	Final bool
}

// ChunkStream yields the chunks of one stream in order. Next returns io.EOF
// once the stream is exhausted; a well-formed stream ends with exactly one
// chunk whose Final flag is set.
type ChunkStream interface {
	Next(ctx context.Context) (CipherChunk, error)
	Close() error
}

// DecryptedBlob is the plaintext of one attachment, held in memory until its
// archive entry is written.
type DecryptedBlob struct {
	Data     []byte
	MimeType string
}

// ZipEntry is one archive member.
type ZipEntry struct {
	Path string
	Data []byte
}
