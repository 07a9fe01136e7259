package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/dmitrijs2005/vaultexport/internal/client/models"
	"github.com/dmitrijs2005/vaultexport/internal/client/repositories/blobs"
	"github.com/dmitrijs2005/vaultexport/internal/client/storage/storagetest"
	"github.com/dmitrijs2005/vaultexport/internal/common"
	"github.com/dmitrijs2005/vaultexport/internal/cryptox"
	"github.com/dmitrijs2005/vaultexport/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memFetcher serves a remote object from memory and can fail selected
// offsets a number of times.
type memFetcher struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    map[int64]int
	failErr error
	calls   []int64
}

func (f *memFetcher) FetchChunk(_ context.Context, hash string, offset, length int64, _ string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, offset)

	if f.fail[offset] > 0 {
		f.fail[offset]--
		return nil, f.failErr
	}
	obj, ok := f.objects[hash]
	if !ok {
		return nil, common.ErrorNotFound
	}
	if offset+length > int64(len(obj)) {
		return nil, io.ErrUnexpectedEOF
	}
	return append([]byte(nil), obj[offset:offset+length]...), nil
}

// sealedObject encrypts plain into chunkSize-sized sealed chunks and returns
// the remote object, the record describing it and the chunks.
func sealedObject(t *testing.T, plain []byte, chunkSize int64) ([]byte, models.AttachmentRecord, []models.CipherChunk) {
	t.Helper()
	key := cryptox.GenerateKey()
	enc, err := cryptox.NewStreamEncryptor(key)
	require.NoError(t, err)

	rec := models.AttachmentRecord{
		ID: "a1", ContentHash: "h1", DeclaredSize: int64(len(plain)), ChunkSize: chunkSize, IV: enc.Header(),
	}
	plainSize := chunkSize - cryptox.ChunkOverhead
	count := ChunkCount(rec)

	var obj bytes.Buffer
	var chunks []models.CipherChunk
	for i := int64(0); i < count; i++ {
		end := (i + 1) * plainSize
		if end > int64(len(plain)) {
			end = int64(len(plain))
		}
		final := i == count-1
		sealed, err := enc.Seal(plain[i*plainSize:end], final)
		require.NoError(t, err)
		obj.Write(sealed)
		chunks = append(chunks, models.CipherChunk{Data: sealed, Final: final})
	}
	return obj.Bytes(), rec, chunks
}

func storedChunks(t *testing.T, store blobs.Repository, hash string) []models.CipherChunk {
	t.Helper()
	s, err := store.OpenReadStream(context.Background(), hash)
	require.NoError(t, err)
	var out []models.CipherChunk
	for {
		c, err := s.Next(context.Background())
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, c)
	}
}

func TestChunkCount(t *testing.T) {
	chunk := int64(10 + cryptox.ChunkOverhead)
	tests := []struct {
		size int64
		want int64
	}{
		{0, 1}, {1, 1}, {10, 1}, {11, 2}, {20, 2}, {21, 3},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.size), func(t *testing.T) {
			assert.Equal(t, tt.want, ChunkCount(models.AttachmentRecord{DeclaredSize: tt.size, ChunkSize: chunk}))
		})
	}
}

func TestDownloader_Download(t *testing.T) {
	plain := bytes.Repeat([]byte("x"), 45)
	obj, rec, chunks := sealedObject(t, plain, 10+cryptox.ChunkOverhead)
	require.Len(t, chunks, 5)

	store := blobs.NewSQLiteRepository(storagetest.Open(t))
	f := &memFetcher{objects: map[string][]byte{"h1": obj}}
	d := NewDownloader(f, store, logging.Discard(), 2, 1)

	require.NoError(t, d.Download(context.Background(), rec, "tok"))
	assert.Equal(t, chunks, storedChunks(t, store, "h1"))

	st, err := store.Status(context.Background(), "h1")
	require.NoError(t, err)
	assert.True(t, st.Complete)

	// complete copies are not fetched again
	f.calls = nil
	require.NoError(t, d.Download(context.Background(), rec, "tok"))
	assert.Empty(t, f.calls)
}

func TestDownloader_Resumes(t *testing.T) {
	obj, rec, chunks := sealedObject(t, bytes.Repeat([]byte("y"), 25), 10+cryptox.ChunkOverhead)
	store := blobs.NewSQLiteRepository(storagetest.Open(t))
	require.NoError(t, store.Append(context.Background(), "h1", 0, chunks[0]))

	f := &memFetcher{objects: map[string][]byte{"h1": obj}}
	d := NewDownloader(f, store, logging.Discard(), 0, 1)

	require.NoError(t, d.Download(context.Background(), rec, ""))
	assert.Equal(t, []int64{rec.ChunkSize, 2 * rec.ChunkSize}, f.calls)
	assert.Equal(t, chunks, storedChunks(t, store, "h1"))
}

func TestDownloader_RetriesUnavailable(t *testing.T) {
	obj, rec, chunks := sealedObject(t, []byte("short"), 64)
	store := blobs.NewSQLiteRepository(storagetest.Open(t))

	f := &memFetcher{
		objects: map[string][]byte{"h1": obj},
		fail:    map[int64]int{0: 2},
		failErr: fmt.Errorf("flaky: %w", common.ErrUnavailable),
	}
	d := NewDownloader(f, store, logging.Discard(), 3, 1)

	require.NoError(t, d.Download(context.Background(), rec, ""))
	assert.Len(t, f.calls, 3)
	assert.Equal(t, chunks, storedChunks(t, store, "h1"))
}

func TestDownloader_GivesUp(t *testing.T) {
	obj, rec, _ := sealedObject(t, []byte("short"), 64)
	store := blobs.NewSQLiteRepository(storagetest.Open(t))

	f := &memFetcher{
		objects: map[string][]byte{"h1": obj},
		fail:    map[int64]int{0: 10},
		failErr: common.ErrUnavailable,
	}
	d := NewDownloader(f, store, logging.Discard(), 2, 1)

	err := d.Download(context.Background(), rec, "")
	assert.ErrorIs(t, err, common.ErrUnavailable)
	assert.Len(t, f.calls, 3)

	_, err = store.OpenReadStream(context.Background(), "h1")
	assert.ErrorIs(t, err, common.ErrLocalDataNotAvailable)
}

func TestDownloader_NotFoundIsNotRetried(t *testing.T) {
	_, rec, _ := sealedObject(t, []byte("short"), 64)
	store := blobs.NewSQLiteRepository(storagetest.Open(t))
	f := &memFetcher{objects: map[string][]byte{}}

	err := NewDownloader(f, store, logging.Discard(), 5, 1).Download(context.Background(), rec, "")
	assert.ErrorIs(t, err, common.ErrorNotFound)
	assert.Len(t, f.calls, 1)
}

func TestDownloader_InvalidChunkSize(t *testing.T) {
	store := blobs.NewSQLiteRepository(storagetest.Open(t))
	d := NewDownloader(&memFetcher{}, store, logging.Discard(), 0, 1)

	err := d.Download(context.Background(), models.AttachmentRecord{ID: "a", ChunkSize: cryptox.ChunkOverhead}, "")
	assert.Error(t, err)
}
