// Package zipx writes a zip archive as a byte stream while its entries are
// still being produced.
package zipx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/vaultexport/internal/client/models"
	"github.com/dmitrijs2005/vaultexport/internal/common"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"golang.org/x/sync/errgroup"
)

// EntrySource yields archive entries in order and io.EOF after the last.
type EntrySource interface {
	Next(ctx context.Context) (models.ZipEntry, error)
}

var errStreamClosed = errors.New("archive stream closed")

// Stream is the reading end of an archive being written. Entries are pulled
// from the source only as fast as the archive bytes are read.
type Stream struct {
	pr     *io.PipeReader
	cancel context.CancelFunc
	g      *errgroup.Group
}

// NewStream starts writing the entries of src into a zip archive, deflating
// each member at level (flate.DefaultCompression, or 0 to 9). Leading
// slashes are stripped from entry paths. If src or the writer fails, Read
// returns that error and the archive is left without its central directory.
func NewStream(ctx context.Context, src EntrySource, level int) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := writeArchive(gctx, src, pw, level); err != nil {
			pw.CloseWithError(err)
			return err
		}
		return pw.Close()
	})

	return &Stream{pr: pr, cancel: cancel, g: g}
}

func (s *Stream) Read(p []byte) (int, error) {
	return s.pr.Read(p)
}

// Close stops the producer. No further entries are pulled from the source.
func (s *Stream) Close() error {
	s.cancel()
	s.pr.CloseWithError(errStreamClosed)
	_ = s.g.Wait()
	return nil
}

func writeArchive(ctx context.Context, src EntrySource, w io.Writer, level int) error {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})
	modified := time.Now()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		entry, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		member, err := zw.CreateHeader(&zip.FileHeader{
			Name:     strings.TrimLeft(entry.Path, "/"),
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			return fmt.Errorf("%w: %s: %w", common.ErrArchiveWrite, entry.Path, err)
		}
		if _, err := member.Write(entry.Data); err != nil {
			return fmt.Errorf("%w: %s: %w", common.ErrArchiveWrite, entry.Path, err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrArchiveWrite, err)
	}
	return nil
}
