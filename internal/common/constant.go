package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the access
// token on outbound requests.
const AccessTokenHeaderName = "access_token"

// DefaultChunkSize is the plaintext chunk size used when importing files.
const DefaultChunkSize = 5 * 1024 * 1024
