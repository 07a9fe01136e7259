package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/vaultexport/internal/client/config"
	"github.com/dmitrijs2005/vaultexport/internal/client/services"
	"github.com/dmitrijs2005/vaultexport/internal/client/storage"
	"github.com/dmitrijs2005/vaultexport/internal/cryptoworker"
	"github.com/dmitrijs2005/vaultexport/internal/logging"
)

// App holds the services behind the CLI commands.
type App struct {
	cfg *config.Config
	log logging.Logger
	out io.Writer

	repos   *storage.Repositories
	crypto  *cryptoworker.Client
	keyring *services.Keyring
	imports *services.ImportService

	// connect builds the remote side of an export; replaced in tests.
	connect func(ctx context.Context) (*remoteDeps, error)
}

var _ commander = (*App)(nil)

// NewApp opens the vault database named by cfg and wires the services on
// top of it. Command output goes to out, logs to log.
func NewApp(ctx context.Context, cfg *config.Config, log logging.Logger, out io.Writer) (*App, error) {
	repos, err := storage.InitDatabase(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	if cfg.CatalogDSN != "" {
		if err := repos.UsePostgresCatalog(ctx, cfg.CatalogDSN); err != nil {
			_ = repos.Close()
			return nil, fmt.Errorf("error initializing catalog: %w", err)
		}
		log.Info(ctx, "using postgres attachment catalog")
	}

	crypto := cryptoworker.NewClient(cryptoworker.WithLogger(log))
	keyring := services.NewKeyring(crypto, repos.DB)

	a := &App{
		cfg:     cfg,
		log:     log,
		out:     out,
		repos:   repos,
		crypto:  crypto,
		keyring: keyring,
		imports: services.NewImportService(crypto, keyring, repos.Attachments, repos.Blobs,
			cfg.HashAlgorithm, cfg.ChunkSize, log),
	}
	a.connect = a.connectRemote
	return a, nil
}

func (a *App) Close() error {
	return errors.Join(a.crypto.Close(), a.repos.Close())
}
