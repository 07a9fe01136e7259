// Package metadata stores small key/value settings of the local vault, such
// as the master key salt and its verifier.
package metadata

import (
	"context"
)

// Well-known keys.
const (
	KeySalt     = "salt"
	KeyVerifier = "verifier"
)

// KeyMaterial is what the vault keeps about its master key. The key itself
// is re-derived from the password on every unlock.
type KeyMaterial struct {
	Salt     []byte
	Verifier []byte
}

type Repository interface {
	// Get returns common.ErrorNotFound when key is not set.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Lookup returns the values of the keys that are set. Missing keys are
	// absent from the result.
	Lookup(ctx context.Context, keys ...string) (map[string][]byte, error)

	// LoadKeyMaterial returns common.ErrorNotFound unless both the salt
	// and the verifier are set.
	LoadKeyMaterial(ctx context.Context) (KeyMaterial, error)
	SaveKeyMaterial(ctx context.Context, km KeyMaterial) error
}
