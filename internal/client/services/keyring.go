package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/vaultexport/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/vaultexport/internal/common"
	"github.com/dmitrijs2005/vaultexport/internal/cryptox"
	"github.com/dmitrijs2005/vaultexport/internal/dbx"
)

const saltSize = 32

// Keyring derives the master key from the vault password and wraps or
// unwraps per-attachment keys with it. The salt and a verifier of the master
// key are kept in local metadata; the key itself is never stored.
type Keyring struct {
	crypto CryptoClient
	db     *sql.DB
}

func NewKeyring(crypto CryptoClient, db *sql.DB) *Keyring {
	return &Keyring{crypto: crypto, db: db}
}

func (k *Keyring) metadataRepo(db dbx.DBTX) metadata.Repository {
	return metadata.NewSQLiteRepository(db)
}

// Init creates the salt and verifier for password and returns the master
// key. It fails with common.ErrAlreadyInitialized on an initialized vault.
func (k *Keyring) Init(ctx context.Context, password []byte) (*cryptox.Key, error) {
	repo := k.metadataRepo(k.db)
	if _, err := repo.Get(ctx, metadata.KeySalt); err == nil {
		return nil, common.ErrAlreadyInitialized
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	salt := common.GenerateRandByteArray(saltSize)
	master, err := k.crypto.DeriveKey(ctx, password, salt)
	if err != nil {
		return nil, fmt.Errorf("key derivation error: %w", err)
	}
	verifier := cryptox.MakeVerifier(master.Bytes())

	err = dbx.WithTx(ctx, k.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return k.metadataRepo(tx).SaveKeyMaterial(ctx, metadata.KeyMaterial{Salt: salt, Verifier: verifier})
	})
	if err != nil {
		master.Wipe()
		return nil, fmt.Errorf("saving key metadata: %w", err)
	}
	return master, nil
}

// Unlock derives the master key from password and checks it against the
// stored verifier. It returns common.ErrLocalDataNotAvailable for a vault
// that was never initialized and common.ErrUnauthorized for a wrong
// password.
func (k *Keyring) Unlock(ctx context.Context, password []byte) (*cryptox.Key, error) {
	repo := k.metadataRepo(k.db)

	km, err := repo.LoadKeyMaterial(ctx)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrLocalDataNotAvailable
		}
		return nil, err
	}

	master, err := k.crypto.DeriveKey(ctx, password, km.Salt)
	if err != nil {
		return nil, fmt.Errorf("key derivation error: %w", err)
	}
	if subtle.ConstantTimeCompare(km.Verifier, cryptox.MakeVerifier(master.Bytes())) == 0 {
		master.Wipe()
		return nil, common.ErrUnauthorized
	}
	return master, nil
}

// WrapAttachmentKey encrypts key under master.
func (k *Keyring) WrapAttachmentKey(ctx context.Context, master, key *cryptox.Key) ([]byte, error) {
	raw, err := k.crypto.ExportKey(ctx, key)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(raw)

	return k.crypto.Encrypt(ctx, master, raw)
}

// UnwrapAttachmentKey reverses WrapAttachmentKey. Any failure other than an
// unavailable worker or a cancelled context is reported as
// common.ErrKeyUnwrap.
func (k *Keyring) UnwrapAttachmentKey(ctx context.Context, master *cryptox.Key, wrapped []byte) (*cryptox.Key, error) {
	raw, err := k.crypto.Decrypt(ctx, master, wrapped)
	if err != nil {
		if isFatal(ctx, err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", common.ErrKeyUnwrap, err)
	}
	defer common.WipeByteArray(raw)

	key, err := cryptox.NewKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrKeyUnwrap, err)
	}
	return key, nil
}

// isFatal reports errors that end a whole export rather than one item.
func isFatal(ctx context.Context, err error) bool {
	return errors.Is(err, common.ErrWorkerUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		ctx.Err() != nil
}
