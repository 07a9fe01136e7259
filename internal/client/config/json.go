package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/vaultexport/internal/flagx"
	"github.com/dmitrijs2005/vaultexport/internal/timex"
)

// JsonConfig is the on-disk form of Config. Keys missing from the file keep
// the value they had before loading.
type JsonConfig struct {
	DatabaseDSN   string `json:"database_dsn"`
	CatalogDSN    string `json:"catalog_dsn"`
	BackendAddr   string `json:"backend_addr"`
	RemoteMode    string `json:"remote_mode"`
	RemoteBaseURL string `json:"remote_base_url"`
	RefreshURL    string `json:"refresh_url"`
	AccessToken   string `json:"access_token"`
	RefreshToken  string `json:"refresh_token"`

	S3Bucket   string `json:"s3_bucket"`
	S3Region   string `json:"s3_region"`
	S3Endpoint string `json:"s3_endpoint"`
	S3User     string `json:"s3_user"`
	S3Password string `json:"s3_password"`
	S3Prefix   string `json:"s3_prefix"`

	DownloadRetries uint64         `json:"download_retries"`
	DownloadTimeout timex.Duration `json:"download_timeout"`

	CompressionLevel int    `json:"compression_level"`
	NamingMode       string `json:"naming_mode"`
	HashAlgorithm    string `json:"hash_algorithm"`
	ChunkSize        int    `json:"chunk_size"`

	LogLevel string `json:"log_level"`
	LogJSON  bool   `json:"log_json"`
}

func toJson(c *Config) JsonConfig {
	return JsonConfig{
		DatabaseDSN: c.DatabaseDSN, CatalogDSN: c.CatalogDSN, BackendAddr: c.BackendAddr,
		RemoteMode: c.RemoteMode, RemoteBaseURL: c.RemoteBaseURL, RefreshURL: c.RefreshURL,
		AccessToken: c.AccessToken, RefreshToken: c.RefreshToken,
		S3Bucket: c.S3Bucket, S3Region: c.S3Region, S3Endpoint: c.S3Endpoint,
		S3User: c.S3User, S3Password: c.S3Password, S3Prefix: c.S3Prefix,
		DownloadRetries:  c.DownloadRetries,
		DownloadTimeout:  timex.Duration{Duration: c.DownloadTimeout},
		CompressionLevel: c.CompressionLevel, NamingMode: c.NamingMode,
		HashAlgorithm: c.HashAlgorithm, ChunkSize: c.ChunkSize,
		LogLevel: c.LogLevel, LogJSON: c.LogJSON,
	}
}

func (jc JsonConfig) apply(c *Config) {
	c.DatabaseDSN, c.CatalogDSN, c.BackendAddr = jc.DatabaseDSN, jc.CatalogDSN, jc.BackendAddr
	c.RemoteMode, c.RemoteBaseURL, c.RefreshURL = jc.RemoteMode, jc.RemoteBaseURL, jc.RefreshURL
	c.AccessToken, c.RefreshToken = jc.AccessToken, jc.RefreshToken
	c.S3Bucket, c.S3Region, c.S3Endpoint = jc.S3Bucket, jc.S3Region, jc.S3Endpoint
	c.S3User, c.S3Password, c.S3Prefix = jc.S3User, jc.S3Password, jc.S3Prefix
	c.DownloadRetries = jc.DownloadRetries
	c.DownloadTimeout = jc.DownloadTimeout.Duration
	c.CompressionLevel, c.NamingMode = jc.CompressionLevel, jc.NamingMode
	c.HashAlgorithm, c.ChunkSize = jc.HashAlgorithm, jc.ChunkSize
	c.LogLevel, c.LogJSON = jc.LogLevel, jc.LogJSON
}

// parseJson overlays cfg with the JSON file named by -c or -config in args.
// Without either flag it does nothing.
func parseJson(cfg *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	jc := toJson(cfg)
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	jc.apply(cfg)
	return nil
}
