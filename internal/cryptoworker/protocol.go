package cryptoworker

import (
	"context"

	"github.com/dmitrijs2005/vaultexport/internal/client/models"
	"github.com/dmitrijs2005/vaultexport/internal/cryptox"
)

type eventKind int

const (
	eventRead eventKind = iota
	eventWrite
	eventDone
)

func (k eventKind) String() string {
	switch k {
	case eventRead:
		return "read"
	case eventWrite:
		return "write"
	default:
		return "done"
	}
}

// event is a message from the worker to the stream listener of StreamID.
type event struct {
	streamID string
	// gen is the attach generation of the stream the event belongs to.
	gen      uint64
	kind     eventKind

	// chunk is set for write events.
	chunk models.CipherChunk

	// header and err are set for done events.
	header []byte
	err    error
}

// topic renders the event tag, e.g. "4b1f…:read".
func (e event) topic() string {
	return e.streamID + ":" + e.kind.String()
}

type opKind int

const (
	opEncrypt opKind = iota
	opDecrypt
	opHash
	opDeriveKey
	opExportKey
	opOpenEncrypt
	opOpenDecrypt
	opChunk
	opAbort
)

// request is a message to the worker. Only one-shot operations carry a
// reply channel; stream progress is reported through events.
type request struct {
	op       opKind
	streamID string
	gen      uint64

	key  *cryptox.Key
	iv   []byte
	data []byte
	salt []byte
	alg  string

	chunk models.CipherChunk
	err   error

	reply chan response
}

type response struct {
	data []byte
	text string
	key  *cryptox.Key
	err  error
}

// ChunkSink receives the output chunks of a stream, in order. The sink owns
// chunk.Data once called.
type ChunkSink func(ctx context.Context, chunk models.CipherChunk) error
