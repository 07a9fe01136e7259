// Package config loads runtime configuration for the vaultexport CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-d string            path of the local SQLite vault
//	-catalog string      Postgres DSN of a shared attachment catalog (optional)
//	-a string            host:port of the backend gRPC endpoint (health probe)
//	-remote-mode string  http or s3
//	-remote-url string   base URL of the HTTP attachment endpoint
//	-refresh-url string  token refresh URL
//	-s3-bucket, -s3-region, -s3-endpoint, -s3-prefix string
//	-retries int         per-chunk download retries
//	-timeout duration    timeout of one chunk request
//	-z int               deflate level, -2 (huffman only) to 9; negative values need -z=-1
//	-naming string       archive member naming: hash or filename
//	-hash string         content hash algorithm: sha256 or blake3
//	-chunk-size int      plaintext chunk size used on import
//	-log-level string    debug, info, warn or error
//	-log-json            log as JSON
//
// Tokens and S3 credentials are only read from the JSON file.
//
// # JSON schema
//
// Durations use timex.Duration, so they can be strings like "30s" or integer
// nanoseconds:
//
//	{
//	  "database_dsn": "vault.db",
//	  "backend_addr": "127.0.0.1:50051",
//	  "remote_mode": "s3",
//	  "s3_bucket": "attachments",
//	  "download_timeout": "30s"
//	}
package config
