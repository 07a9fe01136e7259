package cryptoworker

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/vaultexport/internal/common"
	"github.com/dmitrijs2005/vaultexport/internal/cryptox"
)

const inboxSize = 16

type stream struct {
	gen uint64
	enc *cryptox.StreamEncryptor
	dec *cryptox.StreamDecryptor
}

// worker owns every cipher computation. All fields except the channels are
// touched only by run.
type worker struct {
	inbox  chan request
	events chan event
	quit   chan struct{}

	streams map[string]*stream
}

func newWorker() *worker {
	return &worker{
		inbox:   make(chan request, inboxSize),
		events:  make(chan event),
		quit:    make(chan struct{}),
		streams: make(map[string]*stream),
	}
}

func (w *worker) run() {
	for {
		select {
		case req := <-w.inbox:
			w.handle(req)
		case <-w.quit:
			return
		}
	}
}

func (w *worker) handle(req request) {
	switch req.op {
	case opEncrypt:
		out, err := cryptox.Seal(req.key, req.data)
		req.reply <- response{data: out, err: err}

	case opDecrypt:
		out, err := cryptox.Open(req.key, req.data)
		req.reply <- response{data: out, err: err}

	case opHash:
		sum, err := cryptox.Hash(req.alg, req.data)
		req.reply <- response{text: sum, err: err}

	case opDeriveKey:
		raw := cryptox.DeriveMasterKey(req.data, req.salt)
		key, err := cryptox.NewKey(raw)
		common.WipeByteArray(raw)
		req.reply <- response{key: key, err: err}

	case opExportKey:
		if req.key == nil {
			req.reply <- response{err: cryptox.ErrInvalidKeySize}
			return
		}
		req.reply <- response{data: req.key.Export()}

	case opOpenEncrypt:
		enc, err := cryptox.NewStreamEncryptor(req.key)
		if err != nil {
			w.emit(event{streamID: req.streamID, gen: req.gen, kind: eventDone, err: err})
			return
		}
		w.streams[req.streamID] = &stream{gen: req.gen, enc: enc}
		w.emit(event{streamID: req.streamID, gen: req.gen, kind: eventRead})

	case opOpenDecrypt:
		dec, err := cryptox.NewStreamDecryptor(req.key, req.iv)
		if err != nil {
			w.emit(event{streamID: req.streamID, gen: req.gen, kind: eventDone, err: err})
			return
		}
		w.streams[req.streamID] = &stream{gen: req.gen, dec: dec}
		w.emit(event{streamID: req.streamID, gen: req.gen, kind: eventRead})

	case opChunk:
		st := w.current(req)
		if st == nil {
			// late delivery for an aborted stream or an earlier use of the id
			return
		}
		if st.enc != nil {
			w.encryptChunk(req.streamID, st, req)
		} else {
			w.decryptChunk(req.streamID, st, req)
		}

	case opAbort:
		if w.current(req) != nil {
			delete(w.streams, req.streamID)
		}
	}
}

// current returns the open stream req is addressed to, or nil when the id is
// closed or now belongs to a later generation.
func (w *worker) current(req request) *stream {
	st, ok := w.streams[req.streamID]
	if !ok || st.gen != req.gen {
		return nil
	}
	return st
}

func (w *worker) encryptChunk(id string, st *stream, req request) {
	sealed, err := st.enc.Seal(req.chunk.Data, req.chunk.Final)
	if err != nil {
		w.fail(id, st.gen, err)
		return
	}
	w.emit(event{streamID: id, gen: st.gen, kind: eventWrite, chunk: chunkOf(sealed, req.chunk.Final)})
	if req.chunk.Final {
		delete(w.streams, id)
		w.emit(event{streamID: id, gen: st.gen, kind: eventDone, header: st.enc.Header()})
		return
	}
	w.emit(event{streamID: id, gen: st.gen, kind: eventRead})
}

func (w *worker) decryptChunk(id string, st *stream, req request) {
	plain, final, err := st.dec.Open(req.chunk.Data)
	if err != nil {
		w.fail(id, st.gen, err)
		return
	}
	if final != req.chunk.Final {
		w.fail(id, st.gen, fmt.Errorf("%w: chunk final flag %t, authenticated tag final %t",
			common.ErrTruncatedStream, req.chunk.Final, final))
		return
	}
	w.emit(event{streamID: id, gen: st.gen, kind: eventWrite, chunk: chunkOf(plain, final)})
	if final {
		delete(w.streams, id)
		w.emit(event{streamID: id, gen: st.gen, kind: eventDone})
		return
	}
	w.emit(event{streamID: id, gen: st.gen, kind: eventRead})
}

func (w *worker) fail(id string, gen uint64, err error) {
	delete(w.streams, id)
	w.emit(event{streamID: id, gen: gen, kind: eventDone, err: err})
}

func (w *worker) emit(ev event) {
	select {
	case w.events <- ev:
	case <-w.quit:
	}
}

var errSelfTest = errors.New("cipher self-test failed")

// selfTest runs one sealed round trip through both ciphers before the
// worker accepts requests.
func selfTest() error {
	key := cryptox.GenerateKey()
	defer key.Wipe()

	probe := []byte("vaultexport self-test")

	sealed, err := cryptox.Seal(key, probe)
	if err != nil {
		return fmt.Errorf("%w: %w", errSelfTest, err)
	}
	opened, err := cryptox.Open(key, sealed)
	if err != nil || !bytes.Equal(opened, probe) {
		return fmt.Errorf("%w: aes-gcm round trip", errSelfTest)
	}

	enc, err := cryptox.NewStreamEncryptor(key)
	if err != nil {
		return fmt.Errorf("%w: %w", errSelfTest, err)
	}
	chunk, err := enc.Seal(probe, true)
	if err != nil {
		return fmt.Errorf("%w: %w", errSelfTest, err)
	}
	dec, err := cryptox.NewStreamDecryptor(key, enc.Header())
	if err != nil {
		return fmt.Errorf("%w: %w", errSelfTest, err)
	}
	plain, final, err := dec.Open(chunk)
	if err != nil || !final || !bytes.Equal(plain, probe) {
		return fmt.Errorf("%w: stream round trip", errSelfTest)
	}
	return nil
}
