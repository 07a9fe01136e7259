package cli

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/dmitrijs2005/vaultexport/internal/client/config"
	"github.com/dmitrijs2005/vaultexport/internal/client/remote"
	"github.com/dmitrijs2005/vaultexport/internal/client/services"
)

// remoteDeps is what an online export needs from the backend.
type remoteDeps struct {
	downloader services.Downloader
	tokens     services.TokenProvider
	probe      services.OnlineChecker
	closers    []io.Closer
}

func (r *remoteDeps) Close() error {
	var errs []error
	for _, c := range r.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// connectRemote builds the downloader for the configured remote mode. It
// returns nil when no remote is configured.
func (a *App) connectRemote(ctx context.Context) (*remoteDeps, error) {
	cfg := a.cfg
	httpClient := &http.Client{Timeout: cfg.DownloadTimeout}
	tokens := remote.NewTokenSource(cfg.AccessToken, cfg.RefreshToken, cfg.RefreshURL, httpClient)

	deps := &remoteDeps{}

	var fetcher remote.ChunkFetcher
	switch cfg.RemoteMode {
	case config.RemoteS3:
		client, err := remote.NewS3Client(ctx, remote.S3Config{
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3Endpoint,
			User:         cfg.S3User,
			Password:     cfg.S3Password,
		})
		if err != nil {
			return nil, err
		}
		fetcher = &remote.S3Fetcher{API: client, Bucket: cfg.S3Bucket, Prefix: cfg.S3Prefix}
	default:
		if cfg.RemoteBaseURL == "" {
			return nil, nil
		}
		fetcher = &remote.HTTPFetcher{BaseURL: cfg.RemoteBaseURL, Client: httpClient}
		deps.tokens = tokens
	}

	deps.downloader = remote.NewDownloader(fetcher, a.repos.Blobs, a.log, cfg.DownloadRetries, remote.DefaultBackoff)

	if cfg.BackendAddr != "" {
		probe, err := remote.NewHealthProbe(cfg.BackendAddr, tokens)
		if err != nil {
			return nil, err
		}
		deps.probe = probe
		deps.closers = append(deps.closers, probe)
	}
	return deps, nil
}
