// Package cryptox holds the cryptographic primitives the crypto worker runs:
// master key derivation, AES-GCM sealing for small values and wrapped keys,
// content hashing and the chunked XChaCha20-Poly1305 stream cipher.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"

	"github.com/dmitrijs2005/vaultexport/internal/common"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/argon2"
)

// KeySize is the size in bytes of every symmetric key used here.
const KeySize = 32

// Hash algorithm names accepted by Hash and NewHasher.
const (
	HashSHA256 = "sha256"
	HashBLAKE3 = "blake3"
)

var (
	ErrInvalidKeySize = errors.New("invalid key size")
	ErrSealedTooShort = errors.New("sealed value too short")
	ErrUnknownHash    = errors.New("unknown hash algorithm")
)

// Key is a symmetric key. The zero value is not usable; create keys with
// NewKey or GenerateKey. Wipe zeroes the key material.
type Key struct {
	b []byte
}

// NewKey copies b into a new Key. b must be KeySize bytes long.
func NewKey(b []byte) (*Key, error) {
	if len(b) != KeySize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKeySize, len(b))
	}
	k := &Key{b: make([]byte, KeySize)}
	copy(k.b, b)
	return k, nil
}

// GenerateKey returns a new random key.
func GenerateKey() *Key {
	return &Key{b: common.GenerateRandByteArray(KeySize)}
}

// Bytes returns the key material. The slice is borrowed: callers must not
// retain or modify it.
func (k *Key) Bytes() []byte {
	return k.b
}

// Export returns a copy of the key material.
func (k *Key) Export() []byte {
	out := make([]byte, len(k.b))
	copy(out, k.b)
	return out
}

func (k *Key) Wipe() {
	common.WipeByteArray(k.b)
}

func MakeVerifier(masterKey []byte) []byte {
	hash := sha256.Sum256(masterKey)
	return hash[:]
}

func DeriveMasterKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, KeySize)
}

// Seal encrypts plaintext with AES-GCM under key and returns nonce||ciphertext.
// A fresh random nonce is generated for every call.
func Seal(key *Key, plaintext []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, aesgcm.NonceSize(), aesgcm.NonceSize()+len(plaintext)+aesgcm.Overhead())
	if _, err := io.ReadFull(rand.Reader, out); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	return aesgcm.Seal(out, out[:aesgcm.NonceSize()], plaintext, nil), nil
}

// Open reverses Seal.
func Open(key *Key, sealed []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aesgcm.NonceSize()+aesgcm.Overhead() {
		return nil, ErrSealedTooShort
	}

	nonce, ciphertext := sealed[:aesgcm.NonceSize()], sealed[aesgcm.NonceSize():]
	return aesgcm.Open(nil, nonce, ciphertext, nil)
}

// WrapKey encrypts an attachment key under the master key.
func WrapKey(master, key *Key) ([]byte, error) {
	return Seal(master, key.b)
}

// UnwrapKey opens a key produced by WrapKey. Every failure matches
// common.ErrKeyUnwrap.
func UnwrapKey(master *Key, wrapped []byte) (*Key, error) {
	raw, err := Open(master, wrapped)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrKeyUnwrap, err)
	}
	defer common.WipeByteArray(raw)

	k, err := NewKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrKeyUnwrap, err)
	}
	return k, nil
}

// NewHasher returns a streaming hash for alg.
func NewHasher(alg string) (hash.Hash, error) {
	switch alg {
	case HashSHA256:
		return sha256.New(), nil
	case HashBLAKE3:
		return blake3.New(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownHash, alg)
	}
}

// Hash returns the hex digest of data under alg.
func Hash(alg string, data []byte) (string, error) {
	h, err := NewHasher(alg)
	if err != nil {
		return "", err
	}
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func newGCM(key *Key) (cipher.AEAD, error) {
	if key == nil || len(key.b) != KeySize {
		return nil, ErrInvalidKeySize
	}
	block, err := aes.NewCipher(key.b)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
