package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/vaultexport/internal/common"
	"github.com/dmitrijs2005/vaultexport/internal/cryptox"
	"github.com/klauspost/compress/flate"
)

// Remote modes.
const (
	RemoteHTTP = "http"
	RemoteS3   = "s3"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config holds runtime settings for the vaultexport CLI.
type Config struct {
	DatabaseDSN string
	// CatalogDSN, when set, moves the attachment catalog to Postgres.
	CatalogDSN  string
	BackendAddr string

	RemoteMode    string
	RemoteBaseURL string
	RefreshURL    string
	AccessToken   string
	RefreshToken  string

	S3Bucket   string
	S3Region   string
	S3Endpoint string
	S3User     string
	S3Password string
	S3Prefix   string

	DownloadRetries uint64
	DownloadTimeout time.Duration

	CompressionLevel int
	NamingMode       string
	HashAlgorithm    string
	ChunkSize        int

	LogLevel string
	LogJSON  bool
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DatabaseDSN = "vault.db"
	c.BackendAddr = "127.0.0.1:50051"
	c.RemoteMode = RemoteHTTP
	c.S3Region = "us-east-1"
	c.DownloadRetries = 3
	c.DownloadTimeout = 30 * time.Second
	c.CompressionLevel = flate.DefaultCompression
	c.NamingMode = "hash"
	c.HashAlgorithm = cryptox.HashSHA256
	c.ChunkSize = common.DefaultChunkSize
	c.LogLevel = "info"
}

// Validate checks values that would otherwise fail deep inside an export.
func (c *Config) Validate() error {
	switch c.RemoteMode {
	case RemoteHTTP, RemoteS3:
	default:
		return fmt.Errorf("%w: remote mode %q", ErrInvalidConfig, c.RemoteMode)
	}
	if c.RemoteMode == RemoteS3 && c.S3Bucket == "" {
		return fmt.Errorf("%w: s3 mode needs a bucket", ErrInvalidConfig)
	}
	if c.CompressionLevel < flate.HuffmanOnly || c.CompressionLevel > flate.BestCompression {
		return fmt.Errorf("%w: compression level %d", ErrInvalidConfig, c.CompressionLevel)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size %d", ErrInvalidConfig, c.ChunkSize)
	}
	if c.DownloadTimeout < 0 {
		return fmt.Errorf("%w: negative download timeout", ErrInvalidConfig)
	}
	if _, err := cryptox.NewHasher(c.HashAlgorithm); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// LoadConfig builds a Config from defaults, the JSON file and flags found
// in os.Args, in that order, and validates the result.
func LoadConfig() (*Config, error) {
	return load(os.Args[1:])
}

func load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
