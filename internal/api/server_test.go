package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/realtime-chart-scraper/internal/cache"
	"github.com/JakeFAU/realtime-chart-scraper/internal/codec"
	"github.com/JakeFAU/realtime-chart-scraper/internal/scraper"
	"github.com/JakeFAU/realtime-chart-scraper/internal/storage/memory"
	"github.com/JakeFAU/realtime-chart-scraper/internal/storage/sqlite"
	"github.com/JakeFAU/realtime-chart-scraper/internal/writer"
)

type fakeReader struct {
	rows []scraper.StoredRecord
	err  error
}

func (f fakeReader) List(context.Context) ([]scraper.StoredRecord, error) { return f.rows, f.err }
func (f fakeReader) Count(context.Context) (int64, error)                 { return int64(len(f.rows)), f.err }

type brokenCache struct{ err error }

func (b brokenCache) Store(context.Context, string) error { return b.err }
func (b brokenCache) Load(context.Context) (string, error) {
	return "", b.err
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_Index(t *testing.T) {
	t.Parallel()

	rec := get(t, NewServer(fakeReader{}, cache.NewSlot(), zap.NewNop()).Handler(), "/")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, Banner, rec.Body.String())
	require.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_Movies_EmptyStore(t *testing.T) {
	t.Parallel()

	rec := get(t, NewServer(fakeReader{}, cache.NewSlot(), zap.NewNop()).Handler(), "/movies")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String())
}

func TestServer_Movies_StoreError(t *testing.T) {
	t.Parallel()

	rec := get(t, NewServer(fakeReader{err: errors.New("disk I/O error")}, cache.NewSlot(), zap.NewNop()).Handler(), "/movies")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"failed to read movies"}`, rec.Body.String())
}

func TestServer_Base64_BeforeFirstRun(t *testing.T) {
	t.Parallel()

	rec := get(t, NewServer(fakeReader{}, cache.NewSlot(), zap.NewNop()).Handler(), "/movies/base64")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.JSONEq(t, `{"error":"movie snapshot not yet available"}`, rec.Body.String())
}

func TestServer_Base64_Errors(t *testing.T) {
	t.Parallel()

	slot := cache.NewSlot()
	require.NoError(t, slot.Store(context.Background(), "%%% not base64"))
	tests := []struct {
		name  string
		cache scraper.EncodedCache
	}{
		{name: "undecodable", cache: slot},
		{name: "load failure", cache: brokenCache{err: errors.New("redis down")}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := get(t, NewServer(fakeReader{}, tc.cache, zap.NewNop()).Handler(), "/movies/base64")
			require.Equal(t, http.StatusInternalServerError, rec.Code)
		})
	}
}

// After a run that extracted ["A","B"], every read surface agrees.
func TestServer_AfterRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := sqlite.Open(ctx, sqlite.Config{Path: filepath.Join(t.TempDir(), "movies.db")})
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck
	slot := cache.NewSlot()
	files := memory.NewBlobStore()

	w, err := writer.New(writer.Config{DocumentPath: "filmes.json", TabularPath: "filmes.csv"}, files, store, slot)
	require.NoError(t, err)
	_, err = w.Write(ctx, scraper.RecordSet{{Title: "A"}, {Title: "B"}})
	require.NoError(t, err)

	h := NewServer(store, slot, zaptest.NewLogger(t)).Handler()

	rec := get(t, h, "/movies")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[{"filme":"A"},{"filme":"B"}]`, rec.Body.String())

	rec = get(t, h, "/movies/base64")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Equal(t, `[{"filme":"A"},{"filme":"B"}]`, rec.Body.String())

	doc, ok := files.Get("filmes.json")
	require.True(t, ok)
	require.Equal(t, doc, rec.Body.Bytes())

	// A second run: the store accumulates, the cached snapshot is replaced.
	_, err = w.Write(ctx, scraper.RecordSet{{Title: "C"}})
	require.NoError(t, err)

	var rows []map[string]string
	require.NoError(t, json.Unmarshal(get(t, h, "/movies").Body.Bytes(), &rows))
	require.Len(t, rows, 3)
	require.Equal(t, `[{"filme":"C"}]`, get(t, h, "/movies/base64").Body.String())
}

func TestServer_MoviesPreservesNonASCII(t *testing.T) {
	t.Parallel()

	reader := fakeReader{rows: []scraper.StoredRecord{{ID: 1, Title: "Cidade de Deus & Amélie"}}}
	rec := get(t, NewServer(reader, cache.NewSlot(), zap.NewNop()).Handler(), "/movies")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Cidade de Deus & Amélie")
}

func TestServer_Base64_ReturnsExactBytes(t *testing.T) {
	t.Parallel()

	doc, err := codec.EncodeDocument(scraper.RecordSet{{Title: "1. The Shawshank Redemption"}})
	require.NoError(t, err)
	slot := cache.NewSlot()
	require.NoError(t, slot.Store(context.Background(), codec.Encode(doc)))

	rec := get(t, NewServer(fakeReader{}, slot, zap.NewNop()).Handler(), "/movies/base64")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, doc, rec.Body.Bytes())
}

func TestServer_HealthAndReady(t *testing.T) {
	t.Parallel()

	h := NewServer(fakeReader{rows: []scraper.StoredRecord{{ID: 1, Title: "A"}}}, cache.NewSlot(), zap.NewNop()).Handler()
	rec := get(t, h, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = get(t, h, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ready","rows":1}`, rec.Body.String())

	h = NewServer(fakeReader{err: errors.New("closed")}, cache.NewSlot(), zap.NewNop()).Handler()
	require.Equal(t, http.StatusServiceUnavailable, get(t, h, "/readyz").Code)
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	h := NewServer(fakeReader{}, cache.NewSlot(), zap.NewNop()).Handler()
	get(t, h, "/movies")
	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_UnknownRoute(t *testing.T) {
	t.Parallel()

	rec := get(t, NewServer(fakeReader{}, cache.NewSlot(), zap.NewNop()).Handler(), "/v1/jobs")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestIDMiddlewareKeepsIncomingID(t *testing.T) {
	t.Parallel()

	var seen string
	h := requestIDMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, "abc-123", seen)
	require.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Use(recoverMiddleware(zaptest.NewLogger(t)))
	r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := get(t, r, "/boom")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}
