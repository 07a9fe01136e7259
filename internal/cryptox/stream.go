package cryptox

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// HeaderSize is the length of a stream header, the value callers store as the
// attachment's initialization vector.
const HeaderSize = chacha20poly1305.NonceSizeX

// ChunkOverhead is the number of bytes each sealed chunk adds to its
// plaintext: one tag byte plus the Poly1305 tag.
const ChunkOverhead = 1 + chacha20poly1305.Overhead

const (
	tagMessage byte = 0x00
	tagFinal   byte = 0x03
)

var (
	ErrStreamFinished = errors.New("stream already finished")
	ErrChunkTooShort  = errors.New("sealed chunk too short")
	ErrInvalidHeader  = errors.New("invalid stream header")
	ErrChunkAuth      = errors.New("chunk authentication failed")
)

// StreamEncryptor seals a sequence of chunks under one key. Chunk i uses the
// nonce header[:16] || uint64be(i), and the tag byte marking the last chunk is
// encrypted together with the payload, so truncation and reordering are
// detected when decrypting.
type StreamEncryptor struct {
	aead    cipher.AEAD
	header  []byte
	counter uint64
	done    bool
}

// NewStreamEncryptor starts a stream with a random header.
func NewStreamEncryptor(key *Key) (*StreamEncryptor, error) {
	aead, err := newXChaCha(key)
	if err != nil {
		return nil, err
	}
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(rand.Reader, header); err != nil {
		return nil, fmt.Errorf("generating stream header: %w", err)
	}
	return &StreamEncryptor{aead: aead, header: header}, nil
}

// Header returns the stream header. It must be passed to NewStreamDecryptor.
func (e *StreamEncryptor) Header() []byte {
	out := make([]byte, len(e.header))
	copy(out, e.header)
	return out
}

// Seal encrypts one chunk. After a chunk sealed with final set, the
// encryptor refuses further input.
func (e *StreamEncryptor) Seal(plaintext []byte, final bool) ([]byte, error) {
	if e.done {
		return nil, ErrStreamFinished
	}

	tag := tagMessage
	if final {
		tag = tagFinal
		e.done = true
	}

	msg := make([]byte, 1+len(plaintext))
	msg[0] = tag
	copy(msg[1:], plaintext)

	out := e.aead.Seal(nil, chunkNonce(e.header, e.counter), msg, nil)
	e.counter++
	return out, nil
}

// StreamDecryptor opens chunks produced by StreamEncryptor, in order.
type StreamDecryptor struct {
	aead    cipher.AEAD
	header  []byte
	counter uint64
	done    bool
}

func NewStreamDecryptor(key *Key, header []byte) (*StreamDecryptor, error) {
	if len(header) != HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidHeader, len(header))
	}
	aead, err := newXChaCha(key)
	if err != nil {
		return nil, err
	}
	h := make([]byte, HeaderSize)
	copy(h, header)
	return &StreamDecryptor{aead: aead, header: h}, nil
}

// Open decrypts the next chunk and reports whether it was the final one.
func (d *StreamDecryptor) Open(sealed []byte) (plaintext []byte, final bool, err error) {
	if d.done {
		return nil, false, ErrStreamFinished
	}
	if len(sealed) < ChunkOverhead {
		return nil, false, ErrChunkTooShort
	}

	msg, err := d.aead.Open(nil, chunkNonce(d.header, d.counter), sealed, nil)
	if err != nil {
		return nil, false, fmt.Errorf("%w: chunk %d", ErrChunkAuth, d.counter)
	}
	d.counter++

	final = msg[0] == tagFinal
	d.done = final
	return msg[1:], final, nil
}

// Done reports whether the final chunk has been opened.
func (d *StreamDecryptor) Done() bool {
	return d.done
}

func chunkNonce(header []byte, counter uint64) []byte {
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	copy(nonce, header[:16])
	binary.BigEndian.PutUint64(nonce[16:], counter)
	return nonce
}

func newXChaCha(key *Key) (cipher.AEAD, error) {
	if key == nil || len(key.b) != KeySize {
		return nil, ErrInvalidKeySize
	}
	aead, err := chacha20poly1305.NewX(key.b)
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}
	return aead, nil
}
