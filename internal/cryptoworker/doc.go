// Package cryptoworker runs all cipher work on one dedicated goroutine and
// exposes it through Client.
//
// # Protocol
//
// The worker and its callers exchange messages over two multiplexed
// channels. Requests flow in: one-shot operations, stream opens, chunk
// deliveries and aborts. Events flow out, each tagged with the stream id
// that scopes it:
//
//	{id}:read   the worker needs the next input chunk (no payload)
//	{id}:write  the worker produced one output chunk (payload + final flag)
//	{id}:done   the stream settled, with the header (encrypt) or an error
//
// A stream is a state machine inside the worker loop; several streams may be
// open at once and are told apart only by their ids. Per id, events are
// delivered in the order the worker produced them.
//
// # Ownership
//
// Chunk payloads move across the channel: once a CipherChunk has been sent,
// in either direction, the sender must not touch its Data again.
//
// # Client
//
// Client starts the worker lazily on first use and keeps it until Close.
// For streaming calls it attaches a listener for the stream id before the
// open request is sent and detaches it when the stream settles, so events
// of other or already finished streams are never delivered to it. Ids must
// be unique among open streams; Client rejects a duplicate before it
// reaches the worker. Each attach carries a generation number, so an id
// reused after a cancelled stream never receives that stream's late events.
package cryptoworker
