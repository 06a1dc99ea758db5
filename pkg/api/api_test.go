package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/docmirror/pkg/archive"
	"github.com/marmos91/docmirror/pkg/deploy"
	"github.com/marmos91/docmirror/pkg/health"
	"github.com/marmos91/docmirror/pkg/journal"
	"github.com/marmos91/docmirror/pkg/mirror"
	"github.com/marmos91/docmirror/pkg/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDownloader struct {
	mu    sync.Mutex
	calls int
	err   error
	ctxOK bool
}

func (f *fakeDownloader) CleanDownload(ctx context.Context) (mirror.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.ctxOK = ctx.Err() == nil
	return mirror.Result{Keys: 2, Written: 2, Bytes: 10}, f.err
}

type fakeDeployer struct {
	mu     sync.Mutex
	body   []byte
	format archive.Format
	calls  int
	err    error
}

func (f *fakeDeployer) Deploy(ctx context.Context, body io.Reader, format archive.Format) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.format = format

	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.body = data
	return f.err
}

type fakeLister struct {
	records []journal.Record
	limit   int
}

func (f *fakeLister) List(limit int) ([]journal.Record, error) {
	f.limit = limit
	return f.records, nil
}

type recordedMetrics struct {
	mu          sync.Mutex
	requests    map[string][]int
	rateLimited int
	authFailed  int
}

func (m *recordedMetrics) RecordRequest(route string, status int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.requests == nil {
		m.requests = make(map[string][]int)
	}
	m.requests[route] = append(m.requests[route], status)
}

func (m *recordedMetrics) RecordRateLimited(route string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimited++
}

func (m *recordedMetrics) RecordAuthFailure(route string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authFailed++
}

type fixture struct {
	server     *Server
	downloader *fakeDownloader
	deployer   *fakeDeployer
	health     *health.State
	metrics    *recordedMetrics
	contentDir string
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()

	f := &fixture{
		downloader: &fakeDownloader{},
		deployer:   &fakeDeployer{},
		health:     health.New(),
		metrics:    &recordedMetrics{},
		contentDir: t.TempDir(),
	}

	cfg := Config{
		ContentDir:     f.contentDir,
		MaxUploadBytes: 1024,
		Username:       "admin",
		Password:       "secret",
		Downloader:     f.downloader,
		Deployer:       f.deployer,
		Health:         f.health,
		Metrics:        f.metrics,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	srv, err := New(cfg)
	require.NoError(t, err)
	f.server = srv
	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func adminRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.SetBasicAuth("admin", "secret")
	return req
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	f := newFixture(t, nil)
	assert.Equal(t, ":8080", f.server.Addr())
}

func TestUpdate(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(adminRequest(http.MethodPost, "/api/admin/update", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.downloader.calls)
	assert.True(t, f.downloader.ctxOK)
	assert.Equal(t, []int{http.StatusOK}, f.metrics.requests["/api/admin/update"])
}

func TestUpdate_Failure(t *testing.T) {
	f := newFixture(t, nil)
	f.downloader.err = errors.New("bucket unreachable")

	rec := f.do(adminRequest(http.MethodPost, "/api/admin/update", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "bucket unreachable")
}

func TestUpdate_DetachedFromClientCancel(t *testing.T) {
	f := newFixture(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := adminRequest(http.MethodPost, "/api/admin/update", nil).WithContext(ctx)

	rec := f.do(req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.downloader.ctxOK, "clean download must not see the client's cancellation")
}

func TestAuth(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*http.Request)
	}{
		{name: "missing header", setup: func(*http.Request) {}},
		{name: "wrong password", setup: func(r *http.Request) { r.SetBasicAuth("admin", "nope") }},
		{name: "wrong username", setup: func(r *http.Request) { r.SetBasicAuth("root", "secret") }},
		{name: "not basic", setup: func(r *http.Request) { r.Header.Set("Authorization", "Bearer token") }},
		{name: "malformed base64", setup: func(r *http.Request) { r.Header.Set("Authorization", "Basic !!!") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			req := httptest.NewRequest(http.MethodPost, "/api/admin/update", nil)
			tt.setup(req)

			rec := f.do(req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")
			assert.Equal(t, 0, f.downloader.calls)
			assert.Equal(t, 1, f.metrics.authFailed)
		})
	}
}

func TestUpload(t *testing.T) {
	tests := []struct {
		contentType string
		want        archive.Format
	}{
		{"application/gzip", archive.FormatTarGz},
		{"application/zip", archive.FormatZip},
		{"application/vnd.rar", archive.FormatRar},
		{"application/x-gzip; charset=binary", archive.FormatTarGz},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			f := newFixture(t, nil)
			req := adminRequest(http.MethodPost, "/api/admin/upload", strings.NewReader("payload"))
			req.Header.Set("Content-Type", tt.contentType)

			rec := f.do(req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, f.deployer.format)
			assert.Equal(t, "payload", string(f.deployer.body))
		})
	}
}

func TestUpload_UnsupportedMediaType(t *testing.T) {
	for _, contentType := range []string{"", "text/plain", "application/x-7z-compressed"} {
		t.Run(contentType, func(t *testing.T) {
			f := newFixture(t, nil)
			req := adminRequest(http.MethodPost, "/api/admin/upload", strings.NewReader("payload"))
			if contentType != "" {
				req.Header.Set("Content-Type", contentType)
			}

			rec := f.do(req)

			assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
			assert.Equal(t, 0, f.deployer.calls, "unsupported uploads never reach the deployer")
		})
	}
}

func TestUpload_TooLarge(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.MaxUploadBytes = 8 })

	req := adminRequest(http.MethodPost, "/api/admin/upload", strings.NewReader(strings.Repeat("x", 64)))
	req.Header.Set("Content-Type", "application/gzip")

	rec := f.do(req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, 0, f.deployer.calls)
}

func TestUpload_TooLargeChunked(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.MaxUploadBytes = 8 })

	req := adminRequest(http.MethodPost, "/api/admin/upload", io.NopCloser(strings.NewReader(strings.Repeat("x", 64))))
	req.ContentLength = -1
	req.Header.Set("Content-Type", "application/gzip")

	rec := f.do(req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, 1, f.deployer.calls)
}

func TestUpload_DeployFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.deployer.err = deploy.ErrRolledBack

	req := adminRequest(http.MethodPost, "/api/admin/upload", strings.NewReader("payload"))
	req.Header.Set("Content-Type", "application/zip")

	rec := f.do(req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestUpload_EndToEnd(t *testing.T) {
	contentDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(contentDir, "old.html"), []byte("old"), 0644))

	contentTree, err := tree.New(contentDir)
	require.NoError(t, err)
	state := health.New()
	coordinator, err := deploy.New(deploy.Config{
		Tree:    contentTree,
		TempDir: t.TempDir(),
		Health:  state,
	})
	require.NoError(t, err)

	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "guide"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "index.html"), []byte("<h1>new</h1>"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "guide", "intro.html"), []byte("intro"), 0644))
	bundle := filepath.Join(t.TempDir(), "bundle.tar.gz")
	require.NoError(t, archive.Pack(context.Background(), src, bundle, archive.FastCompression))
	payload, err := os.ReadFile(bundle)
	require.NoError(t, err)

	srv, err := New(Config{
		ContentDir:     contentDir,
		MaxUploadBytes: 1 << 20,
		Username:       "admin",
		Password:       "secret",
		Downloader:     &fakeDownloader{},
		Deployer:       coordinator,
		Health:         state,
	})
	require.NoError(t, err)

	req := adminRequest(http.MethodPost, "/api/admin/upload", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/gzip")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// The new content is served; the old file is gone.
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/guide/intro.html", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "intro", rec.Body.String())

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/old.html", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOperations(t *testing.T) {
	lister := &fakeLister{records: []journal.Record{
		*journal.NewRecord("b", journal.KindDeploy, "unpacked"),
		*journal.NewRecord("a", journal.KindSync, "completed"),
	}}
	f := newFixture(t, func(c *Config) { c.Operations = lister })

	rec := f.do(adminRequest(http.MethodGet, "/api/admin/operations?limit=5", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, 5, lister.limit)

	var records []journal.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 2)
	assert.Equal(t, "b", records[0].ID)
	assert.Equal(t, journal.KindSync, records[1].Kind)
}

func TestOperations_Limits(t *testing.T) {
	lister := &fakeLister{}
	f := newFixture(t, func(c *Config) { c.Operations = lister })

	rec := f.do(adminRequest(http.MethodGet, "/api/admin/operations", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultOperationsLimit, lister.limit)

	rec = f.do(adminRequest(http.MethodGet, "/api/admin/operations?limit=100000", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, maxOperationsLimit, lister.limit)

	rec = f.do(adminRequest(http.MethodGet, "/api/admin/operations?limit=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOperations_JournalDisabled(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(adminRequest(http.MethodGet, "/api/admin/operations", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	f.health.MarkUnhealthy("restore failed")

	rec = f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status health.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Healthy)
	assert.Equal(t, "restore failed", status.Reason)
}

func TestStaticFiles(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(f.contentDir, "index.html"), []byte("<h1>docs</h1>"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(f.contentDir, "api"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(f.contentDir, "api", "page.html"), []byte("page"), 0644))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<h1>docs</h1>")

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/page.html", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "page", rec.Body.String())

	rec = f.do(httptest.NewRequest(http.MethodGet, "/missing.html", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Static files need no credentials.
	assert.Equal(t, 0, f.metrics.authFailed)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.RequestsPerSecond = 0.001
		c.Burst = 2
	})

	for i := 0; i < 2; i++ {
		rec := f.do(adminRequest(http.MethodPost, "/api/admin/update", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := f.do(adminRequest(http.MethodPost, "/api/admin/update", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 2, f.downloader.calls)
	assert.Equal(t, 1, f.metrics.rateLimited)

	// Other clients have their own bucket.
	req := adminRequest(http.MethodPost, "/api/admin/update", nil)
	req.RemoteAddr = "10.1.2.3:4567"
	assert.Equal(t, http.StatusOK, f.do(req).Code)

	// Static files are not throttled.
	for i := 0; i < 5; i++ {
		assert.NotEqual(t, http.StatusTooManyRequests, f.do(httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	}
}

func TestStartStop(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.Host = "127.0.0.1"
		c.Port = 18089
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.server.Start(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://127.0.0.1:18089/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
