// Package remote retrieves encrypted attachment content from the backend.
//
// Ciphertext is stored remotely as the concatenation of the sealed chunks of
// one stream, keyed by content hash. Downloader fetches it chunk by chunk
// through a ChunkFetcher (plain HTTP ranges or S3 ranged GetObject) and
// appends every chunk to local storage, so an interrupted download resumes
// at the first missing chunk.
//
// TokenSource hands out bearer tokens and refreshes expired ones.
// HealthProbe tells whether the backend is reachable at all; when it is not,
// exports run offline from whatever is cached locally.
package remote
