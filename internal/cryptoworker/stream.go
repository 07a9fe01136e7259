package cryptoworker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/vaultexport/internal/client/models"
)

// ReaderSource splits r into chunks of chunkSize bytes. The last chunk is
// marked final, so the reader is always read one chunk ahead; an empty
// reader yields a single empty final chunk.
func ReaderSource(r io.Reader, chunkSize int) models.ChunkStream {
	return &readerSource{r: r, size: chunkSize}
}

type readerSource struct {
	r    io.Reader
	size int

	next    []byte
	primed  bool
	drained bool
	done    bool
}

func (s *readerSource) read() ([]byte, error) {
	buf := make([]byte, s.size)
	n, err := io.ReadFull(s.r, buf)
	switch {
	case err == nil:
		return buf, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		s.drained = true
		return buf[:n], nil
	default:
		return nil, err
	}
}

func (s *readerSource) Next(ctx context.Context) (models.CipherChunk, error) {
	if err := ctx.Err(); err != nil {
		return models.CipherChunk{}, err
	}
	if s.done {
		return models.CipherChunk{}, io.EOF
	}
	if s.size <= 0 {
		return models.CipherChunk{}, fmt.Errorf("invalid chunk size %d", s.size)
	}

	if !s.primed {
		first, err := s.read()
		if err != nil {
			return models.CipherChunk{}, err
		}
		s.next = first
		s.primed = true
	}

	cur := s.next
	if s.drained {
		s.done = true
		return models.CipherChunk{Data: cur, Final: true}, nil
	}

	following, err := s.read()
	if err != nil {
		return models.CipherChunk{}, err
	}
	if s.drained && len(following) == 0 {
		s.done = true
		return models.CipherChunk{Data: cur, Final: true}, nil
	}
	s.next = following
	return models.CipherChunk{Data: cur}, nil
}

func (s *readerSource) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// SliceSource replays chunks in order, then reports io.EOF.
func SliceSource(chunks ...models.CipherChunk) models.ChunkStream {
	return &sliceSource{chunks: chunks}
}

type sliceSource struct {
	chunks []models.CipherChunk
	pos    int
}

func (s *sliceSource) Next(ctx context.Context) (models.CipherChunk, error) {
	if err := ctx.Err(); err != nil {
		return models.CipherChunk{}, err
	}
	if s.pos >= len(s.chunks) {
		return models.CipherChunk{}, io.EOF
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, nil
}

func (s *sliceSource) Close() error { return nil }

// BufferSink appends every chunk payload to buf.
func BufferSink(buf *bytes.Buffer) ChunkSink {
	return func(_ context.Context, chunk models.CipherChunk) error {
		_, err := buf.Write(chunk.Data)
		return err
	}
}

// CollectSink appends every chunk to *out.
func CollectSink(out *[]models.CipherChunk) ChunkSink {
	return func(_ context.Context, chunk models.CipherChunk) error {
		*out = append(*out, chunk)
		return nil
	}
}

func chunkOf(data []byte, final bool) models.CipherChunk {
	return models.CipherChunk{Data: data, Final: final}
}
