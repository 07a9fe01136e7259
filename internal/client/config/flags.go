package config

import (
	"flag"
	"fmt"
	"io"

	"github.com/dmitrijs2005/vaultexport/internal/flagx"
)

var valueFlags = []string{
	"-d", "-catalog", "-a", "-remote-mode", "-remote-url", "-refresh-url",
	"-s3-bucket", "-s3-region", "-s3-endpoint", "-s3-prefix",
	"-retries", "-timeout", "-z", "-naming", "-hash", "-chunk-size", "-log-level",
}

var boolFlags = []string{"-log-json"}

// CommandArgs returns args without the configuration flags and their
// values, leaving the subcommand with its own flags and arguments.
func CommandArgs(args []string) []string {
	values := append([]string{"-c", "-config", "--config"}, valueFlags...)
	return flagx.RemoveArgs(args, values, boolFlags...)
}

// parseFlags overlays cfg with the flags it knows about. Anything else in
// args (subcommands and their flags) is ignored.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, valueFlags, boolFlags...)

	fs := flag.NewFlagSet("vaultexport", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "path of the local vault database")
	fs.StringVar(&cfg.CatalogDSN, "catalog", cfg.CatalogDSN, "Postgres DSN of the attachment catalog")
	fs.StringVar(&cfg.BackendAddr, "a", cfg.BackendAddr, "address and port of the backend gRPC endpoint")
	fs.StringVar(&cfg.RemoteMode, "remote-mode", cfg.RemoteMode, "remote storage: http or s3")
	fs.StringVar(&cfg.RemoteBaseURL, "remote-url", cfg.RemoteBaseURL, "base URL of attachment downloads")
	fs.StringVar(&cfg.RefreshURL, "refresh-url", cfg.RefreshURL, "access token refresh URL")
	fs.StringVar(&cfg.S3Bucket, "s3-bucket", cfg.S3Bucket, "S3 bucket")
	fs.StringVar(&cfg.S3Region, "s3-region", cfg.S3Region, "S3 region")
	fs.StringVar(&cfg.S3Endpoint, "s3-endpoint", cfg.S3Endpoint, "S3 endpoint URL")
	fs.StringVar(&cfg.S3Prefix, "s3-prefix", cfg.S3Prefix, "S3 object key prefix")
	fs.Uint64Var(&cfg.DownloadRetries, "retries", cfg.DownloadRetries, "retries per downloaded chunk")
	fs.DurationVar(&cfg.DownloadTimeout, "timeout", cfg.DownloadTimeout, "timeout of one chunk request")
	fs.IntVar(&cfg.CompressionLevel, "z", cfg.CompressionLevel, "deflate level")
	fs.StringVar(&cfg.NamingMode, "naming", cfg.NamingMode, "archive member naming: hash or filename")
	fs.StringVar(&cfg.HashAlgorithm, "hash", cfg.HashAlgorithm, "content hash: sha256 or blake3")
	fs.IntVar(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "plaintext chunk size on import")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.BoolVar(&cfg.LogJSON, "log-json", cfg.LogJSON, "log as JSON")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}
	return nil
}
