// Package common defines shared constants, sentinel errors and small helpers
// used across the export pipeline. Callers should use errors.Is to match the
// error values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Local storage has no handle for the requested content hash, even
	// after a download attempt. The attachment is skipped.
	ErrLocalDataNotAvailable = errors.New("local data unavailable")

	// A cipher stream ran out of chunks before the final one arrived.
	ErrTruncatedStream = errors.New("truncated cipher stream")

	// The wrapped attachment key could not be opened with the master key.
	ErrKeyUnwrap = errors.New("attachment key unwrap failed")

	// The crypto worker could not be started or has been closed.
	ErrWorkerUnavailable = errors.New("crypto worker unavailable")

	// The archive writer failed; the archive is incomplete.
	ErrArchiveWrite = errors.New("archive write failed")

	// Streaming calls require a caller-chosen correlation id.
	ErrMissingStreamID = errors.New("missing stream id")

	// The correlation id already scopes an open stream.
	ErrStreamIDInUse = errors.New("stream id already in use")

	// The local vault already has a master key.
	ErrAlreadyInitialized = errors.New("vault already initialized")

	// Remote access errors.
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnavailable  = errors.New("server unavailable")
	ErrTokenExpired = errors.New("token expired")
)
