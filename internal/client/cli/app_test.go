package cli

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/vaultexport/internal/client/config"
	"github.com/dmitrijs2005/vaultexport/internal/client/models"
	"github.com/dmitrijs2005/vaultexport/internal/logging"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T, modify func(*config.Config)) (*App, *bytes.Buffer) {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.DatabaseDSN = filepath.Join(t.TempDir(), "vault.db")
	cfg.BackendAddr = ""
	cfg.ChunkSize = 32
	if modify != nil {
		modify(cfg)
	}

	var out bytes.Buffer
	app, err := NewApp(context.Background(), cfg, logging.Discard(), &out)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app, &out
}

func run(t *testing.T, app *App, args ...string) error {
	t.Helper()
	return Run(context.Background(), app, args, app.out)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func readZip(t *testing.T, path string) map[string]string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	out := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		out[f.Name] = string(b)
	}
	return out
}

func onlyRecord(t *testing.T, app *App) models.AttachmentRecord {
	t.Helper()
	records, err := app.imports.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	return records[0]
}

func TestApp_InitImportListExport(t *testing.T) {
	stubPasswords(t, "pw", "pw", "pw", "pw")
	app, out := newTestApp(t, func(c *config.Config) { c.NamingMode = "filename" })

	content := strings.Repeat("quarterly numbers\n", 10)
	src := writeFile(t, "report.txt", content)

	require.NoError(t, run(t, app, "init"))
	require.NoError(t, run(t, app, "import", src))
	assert.Contains(t, out.String(), "report.txt")

	rec := onlyRecord(t, app)
	assert.Equal(t, "text/plain; charset=utf-8", rec.MimeType)

	out.Reset()
	require.NoError(t, run(t, app, "list"))
	assert.Contains(t, out.String(), rec.ID)
	assert.Contains(t, out.String(), "180 B")

	zipPath := filepath.Join(t.TempDir(), "out", "export.zip")
	out.Reset()
	require.NoError(t, run(t, app, "export", "-o", zipPath))
	assert.Contains(t, out.String(), "[1/1] "+rec.ID+" -> /report.txt")
	assert.Contains(t, out.String(), "wrote 1 attachments")

	assert.Equal(t, map[string]string{"report.txt": content}, readZip(t, zipPath))
}

func TestApp_InitPasswordMismatch(t *testing.T) {
	stubPasswords(t, "pw", "other")
	app, _ := newTestApp(t, nil)

	assert.Error(t, run(t, app, "init"))
}

func TestApp_WrongPassword(t *testing.T) {
	stubPasswords(t, "pw", "pw", "nope")
	app, _ := newTestApp(t, nil)
	require.NoError(t, run(t, app, "init"))

	err := run(t, app, "import", writeFile(t, "a.txt", "a"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wrong password")
}

func TestApp_NotInitialized(t *testing.T) {
	stubPasswords(t, "pw")
	app, _ := newTestApp(t, nil)

	err := run(t, app, "import", writeFile(t, "a.txt", "a"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run init first")
}

func TestApp_ExportRefusesToOverwrite(t *testing.T) {
	stubPasswords(t, "pw", "pw", "pw", "pw", "pw")
	app, _ := newTestApp(t, nil)
	require.NoError(t, run(t, app, "init"))
	require.NoError(t, run(t, app, "import", writeFile(t, "a.txt", "a")))

	zipPath := writeFile(t, "existing.zip", "keep me")

	assert.Error(t, run(t, app, "export", "-o", zipPath))
	b, err := os.ReadFile(zipPath)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(b))

	require.NoError(t, run(t, app, "export", "-f", "-o", zipPath))
	assert.Len(t, readZip(t, zipPath), 1)
}

func TestApp_ExportRefusalKeepsCachedCiphertext(t *testing.T) {
	ctx := context.Background()
	// init, import, then only the forced export prompts
	stubPasswords(t, "pw", "pw", "pw", "pw")
	app, _ := newTestApp(t, nil)
	require.NoError(t, run(t, app, "init"))
	require.NoError(t, run(t, app, "import", writeFile(t, "a.txt", "uploaded already")))
	rec := onlyRecord(t, app)
	require.NoError(t, run(t, app, "mark-uploaded", rec.ID))

	zipPath := writeFile(t, "existing.zip", "keep me")
	require.Error(t, run(t, app, "export", "-offline", "-o", zipPath))

	st, err := app.repos.Blobs.Status(ctx, rec.ContentHash)
	require.NoError(t, err)
	assert.True(t, st.Complete, "a refused export must not drop local ciphertext")

	require.NoError(t, run(t, app, "export", "-offline", "-f", "-o", zipPath))
	assert.Len(t, readZip(t, zipPath), 1)
}

func TestApp_ExportFailureRemovesOutput(t *testing.T) {
	stubPasswords(t, "pw", "pw", "wrong")
	app, _ := newTestApp(t, nil)
	require.NoError(t, run(t, app, "init"))

	zipPath := filepath.Join(t.TempDir(), "out.zip")
	require.ErrorContains(t, run(t, app, "export", "-o", zipPath), "wrong password")

	_, err := os.Stat(zipPath)
	assert.True(t, os.IsNotExist(err))
}

func TestApp_ExportUsage(t *testing.T) {
	app, _ := newTestApp(t, nil)

	assert.ErrorIs(t, run(t, app, "export"), ErrUsage)
	assert.ErrorIs(t, run(t, app, "export", "-bogus"), ErrUsage)
	assert.ErrorIs(t, run(t, app, "import"), ErrUsage)
	assert.ErrorIs(t, run(t, app, "mark-uploaded"), ErrUsage)
}

func TestApp_MarkUploaded(t *testing.T) {
	stubPasswords(t, "pw", "pw", "pw")
	app, _ := newTestApp(t, nil)
	require.NoError(t, run(t, app, "init"))
	require.NoError(t, run(t, app, "import", writeFile(t, "a.txt", "a")))

	rec := onlyRecord(t, app)
	require.NoError(t, run(t, app, "mark-uploaded", rec.ID))
	assert.True(t, onlyRecord(t, app).Uploaded)

	assert.Error(t, run(t, app, "mark-uploaded", "missing"))
}

// moveCiphertext drops the local chunks of rec and returns them joined, as
// the backend stores them.
func moveCiphertext(t *testing.T, app *App, rec models.AttachmentRecord) []byte {
	t.Helper()
	ctx := context.Background()

	s, err := app.repos.Blobs.OpenReadStream(ctx, rec.ContentHash)
	require.NoError(t, err)
	var buf bytes.Buffer
	for {
		chunk, err := s.Next(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		buf.Write(chunk.Data)
	}
	require.NoError(t, s.Close())
	require.NoError(t, app.repos.Blobs.DeleteCached(ctx, rec.ContentHash))
	return buf.Bytes()
}

func TestApp_ExportDownloadsOverHTTP(t *testing.T) {
	stubPasswords(t, "pw", "pw", "pw", "pw")
	app, out := newTestApp(t, func(c *config.Config) { c.NamingMode = "filename" })

	content := strings.Repeat("remote bytes ", 20)
	require.NoError(t, run(t, app, "init"))
	require.NoError(t, run(t, app, "import", writeFile(t, "remote.txt", content)))

	rec := onlyRecord(t, app)
	stored := moveCiphertext(t, app, rec)

	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.URL.Path != "/"+rec.ContentHash {
			http.NotFound(w, r)
			return
		}
		http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(stored))
	}))
	t.Cleanup(srv.Close)
	app.cfg.RemoteBaseURL = srv.URL

	zipPath := filepath.Join(t.TempDir(), "export.zip")
	require.NoError(t, run(t, app, "export", "-o", zipPath))

	assert.Equal(t, map[string]string{"remote.txt": content}, readZip(t, zipPath))
	assert.EqualValues(t, 9, requests.Load(), "one ranged request per chunk")
	assert.NotContains(t, out.String(), "skipped")
}

func TestApp_ExportOfflineSkipsMissing(t *testing.T) {
	stubPasswords(t, "pw", "pw", "pw", "pw")

	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)

	app, out := newTestApp(t, func(c *config.Config) { c.RemoteBaseURL = srv.URL })
	require.NoError(t, run(t, app, "init"))
	require.NoError(t, run(t, app, "import", writeFile(t, "gone.txt", "gone")))
	moveCiphertext(t, app, onlyRecord(t, app))

	zipPath := filepath.Join(t.TempDir(), "export.zip")
	require.NoError(t, run(t, app, "export", "-offline", "-o", zipPath))

	assert.Empty(t, readZip(t, zipPath))
	assert.Zero(t, requests.Load())
	assert.Contains(t, out.String(), "1 skipped")
}
