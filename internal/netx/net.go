// Package netx holds small HTTP helpers for fetching remote ciphertext.
package netx

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/dmitrijs2005/vaultexport/internal/common"
)

// StatusError is returned for unexpected HTTP responses. It unwraps to the
// matching sentinel from package common, if any.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected response: %s", e.Status)
	}
	return fmt.Sprintf("unexpected response: %s; body: %s", e.Status, e.Body)
}

func (e *StatusError) Unwrap() error {
	switch {
	case e.Code == http.StatusUnauthorized, e.Code == http.StatusForbidden:
		return common.ErrUnauthorized
	case e.Code == http.StatusNotFound:
		return common.ErrorNotFound
	case e.Code == http.StatusTooManyRequests, e.Code >= 500:
		return common.ErrUnavailable
	}
	return nil
}

const maxErrorBody = 512

// FetchRange downloads length bytes of url starting at offset. header is
// added to the request. A server that ignores the Range header is accepted
// as long as the full body covers the range.
func FetchRange(ctx context.Context, client *http.Client, url string, offset, length int64, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		return readExact(resp.Body, length)
	case http.StatusOK:
		if _, err := io.CopyN(io.Discard, resp.Body, offset); err != nil {
			return nil, fmt.Errorf("skipping to offset %d: %w", offset, err)
		}
		return readExact(resp.Body, length)
	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status, Body: string(b)}
	}
}

func readExact(r io.Reader, length int64) ([]byte, error) {
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("reading %d bytes: %w", length, err)
	}
	return buf, nil
}
