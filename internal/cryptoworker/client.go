package cryptoworker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/dmitrijs2005/vaultexport/internal/client/models"
	"github.com/dmitrijs2005/vaultexport/internal/common"
	"github.com/dmitrijs2005/vaultexport/internal/cryptox"
	"github.com/dmitrijs2005/vaultexport/internal/logging"
)

// listenerBuffer bounds the events queued for one stream. The worker emits at
// most a write followed by a read or done before it waits for the next chunk.
const listenerBuffer = 4

type listener struct {
	gen    uint64
	events chan event
	done   chan struct{}
}

type Option func(*Client)

func WithLogger(l logging.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithProbe replaces the cipher self-test run before the worker starts.
func WithProbe(probe func() error) Option {
	return func(c *Client) { c.probe = probe }
}

// Client is the only way to reach the crypto worker. It is safe for
// concurrent use; concurrent streams must use distinct ids. An id may be
// reused once its stream call has returned, even after a cancellation.
type Client struct {
	log   logging.Logger
	probe func() error

	once     sync.Once
	startErr error

	mu        sync.Mutex
	w         *worker
	closed    bool
	listeners map[string]*listener
	// lastGen numbers attaches so that a reused id never sees events or
	// chunks of its previous stream.
	lastGen   uint64
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		log:       logging.Discard(),
		probe:     selfTest,
		listeners: make(map[string]*listener),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) start() {
	if err := c.probe(); err != nil {
		c.startErr = err
		c.log.Error(context.Background(), "crypto worker failed to start", "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	w := newWorker()
	c.w = w
	go w.run()
	go c.dispatch(w)
	c.log.Debug(context.Background(), "crypto worker started")
}

// worker starts the worker on first use and returns it.
func (c *Client) worker() (*worker, error) {
	c.once.Do(c.start)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.w == nil {
		if c.startErr != nil {
			return nil, fmt.Errorf("%w: %w", common.ErrWorkerUnavailable, c.startErr)
		}
		return nil, common.ErrWorkerUnavailable
	}
	return c.w, nil
}

// Close stops the worker. Open streams fail with ErrWorkerUnavailable and
// later calls return it immediately.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.w != nil {
		close(c.w.quit)
	}
	return nil
}

func (c *Client) dispatch(w *worker) {
	for {
		select {
		case ev := <-w.events:
			c.deliver(w, ev)
		case <-w.quit:
			return
		}
	}
}

func (c *Client) deliver(w *worker, ev event) {
	c.mu.Lock()
	l, ok := c.listeners[ev.streamID]
	c.mu.Unlock()

	if !ok || l.gen != ev.gen {
		c.log.Debug(context.Background(), "dropping event without listener", "topic", ev.topic())
		return
	}

	select {
	case l.events <- ev:
	case <-l.done:
	case <-w.quit:
	}
}

func (c *Client) attach(streamID string) (*listener, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.listeners[streamID]; ok {
		return nil, fmt.Errorf("%w: %s", common.ErrStreamIDInUse, streamID)
	}
	c.lastGen++
	l := &listener{
		gen:    c.lastGen,
		events: make(chan event, listenerBuffer),
		done:   make(chan struct{}),
	}
	c.listeners[streamID] = l
	return l, nil
}

func (c *Client) detach(streamID string, l *listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listeners[streamID] == l {
		delete(c.listeners, streamID)
		close(l.done)
	}
}

func (c *Client) send(ctx context.Context, w *worker, req request) error {
	select {
	case w.inbox <- req:
		return nil
	case <-w.quit:
		return common.ErrWorkerUnavailable
	case <-ctx.Done():
		return ctx.Err()
	}
}

// abort is sent even when the caller's context is already done. The worker
// ignores it once the id has been reattached.
func (c *Client) abort(w *worker, l *listener, streamID string, cause error) {
	select {
	case w.inbox <- request{op: opAbort, streamID: streamID, gen: l.gen, err: cause}:
	case <-w.quit:
	}
}

func (c *Client) call(ctx context.Context, req request) (response, error) {
	w, err := c.worker()
	if err != nil {
		return response{}, err
	}

	req.reply = make(chan response, 1)
	if err := c.send(ctx, w, req); err != nil {
		return response{}, err
	}

	select {
	case resp := <-req.reply:
		return resp, resp.err
	case <-w.quit:
		return response{}, common.ErrWorkerUnavailable
	case <-ctx.Done():
		return response{}, ctx.Err()
	}
}

// Encrypt seals plaintext with AES-GCM and returns nonce||ciphertext.
func (c *Client) Encrypt(ctx context.Context, key *cryptox.Key, plaintext []byte) ([]byte, error) {
	resp, err := c.call(ctx, request{op: opEncrypt, key: key, data: plaintext})
	return resp.data, err
}

func (c *Client) Decrypt(ctx context.Context, key *cryptox.Key, sealed []byte) ([]byte, error) {
	resp, err := c.call(ctx, request{op: opDecrypt, key: key, data: sealed})
	return resp.data, err
}

// Hash returns the hex digest of data. alg is cryptox.HashSHA256 or
// cryptox.HashBLAKE3.
func (c *Client) Hash(ctx context.Context, alg string, data []byte) (string, error) {
	resp, err := c.call(ctx, request{op: opHash, alg: alg, data: data})
	return resp.text, err
}

// DeriveKey derives the master key from a password with argon2id.
func (c *Client) DeriveKey(ctx context.Context, password, salt []byte) (*cryptox.Key, error) {
	resp, err := c.call(ctx, request{op: opDeriveKey, data: password, salt: salt})
	return resp.key, err
}

func (c *Client) ExportKey(ctx context.Context, key *cryptox.Key) ([]byte, error) {
	resp, err := c.call(ctx, request{op: opExportKey, key: key})
	return resp.data, err
}

// EncryptStream seals the chunks of source and hands the sealed chunks to
// sink. It returns the stream header, which DecryptStream needs as iv.
func (c *Client) EncryptStream(ctx context.Context, key *cryptox.Key, source models.ChunkStream, sink ChunkSink, streamID string) ([]byte, error) {
	done, err := c.stream(ctx, request{op: opOpenEncrypt, streamID: streamID, key: key}, source, sink)
	if err != nil {
		return nil, err
	}
	return done.header, nil
}

// DecryptStream opens the sealed chunks of source and hands the plaintext
// chunks to sink. A source that ends before the final chunk fails with
// common.ErrTruncatedStream.
func (c *Client) DecryptStream(ctx context.Context, key *cryptox.Key, iv []byte, source models.ChunkStream, sink ChunkSink, streamID string) error {
	_, err := c.stream(ctx, request{op: opOpenDecrypt, streamID: streamID, key: key, iv: iv}, source, sink)
	return err
}

func (c *Client) stream(ctx context.Context, open request, source models.ChunkStream, sink ChunkSink) (event, error) {
	id := open.streamID
	if id == "" {
		return event{}, common.ErrMissingStreamID
	}

	w, err := c.worker()
	if err != nil {
		return event{}, err
	}

	l, err := c.attach(id)
	if err != nil {
		return event{}, err
	}
	defer c.detach(id, l)

	open.gen = l.gen
	if err := c.send(ctx, w, open); err != nil {
		return event{}, err
	}

	log := c.log.With("stream_id", id)

	for {
		select {
		case <-ctx.Done():
			c.abort(w, l, id, ctx.Err())
			return event{}, ctx.Err()

		case <-w.quit:
			return event{}, common.ErrWorkerUnavailable

		case ev := <-l.events:
			switch ev.kind {
			case eventRead:
				chunk, err := source.Next(ctx)
				if errors.Is(err, io.EOF) {
					err = fmt.Errorf("%w: source ended before the final chunk", common.ErrTruncatedStream)
				}
				if err != nil {
					c.abort(w, l, id, err)
					log.Debug(ctx, "stream aborted", "error", err)
					return event{}, err
				}
				if err := c.send(ctx, w, request{op: opChunk, streamID: id, gen: l.gen, chunk: chunk}); err != nil {
					c.abort(w, l, id, err)
					return event{}, err
				}

			case eventWrite:
				if err := sink(ctx, ev.chunk); err != nil {
					c.abort(w, l, id, err)
					return event{}, err
				}

			case eventDone:
				if ev.err != nil {
					log.Debug(ctx, "stream failed", "error", ev.err)
				}
				return ev, ev.err
			}
		}
	}
}
