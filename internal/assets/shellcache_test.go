package assets

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newShellUpstream(t *testing.T) (*httptest.Server, *int64) {
	t.Helper()
	var hits int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		switch r.URL.Path {
		case "/index.html":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte("<html>pos shell</html>"))
		case "/app.js":
			w.Header().Set("Content-Type", "application/javascript")
			w.Write([]byte("console.log('pos')"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func TestShellCacheFirstFetchPopulates(t *testing.T) {
	upstream, hits := newShellUpstream(t)
	sc, err := NewShellCache(upstream.URL, nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	sc.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/index.html", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<html>pos shell</html>", rec.Body.String())
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, int64(1), atomic.LoadInt64(hits))

	// Second request is answered from cache without touching the upstream.
	rec = httptest.NewRecorder()
	sc.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/index.html", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), atomic.LoadInt64(hits))
}

func TestShellCacheServesWhileUpstreamDown(t *testing.T) {
	upstream, _ := newShellUpstream(t)
	sc, err := NewShellCache(upstream.URL, nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	sc.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app.js", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	upstream.Close()

	rec = httptest.NewRecorder()
	sc.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app.js", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "console.log('pos')", rec.Body.String())
}

func TestShellCacheOfflineFallbackForNavigation(t *testing.T) {
	upstream, _ := newShellUpstream(t)
	upstream.Close()

	sc, err := NewShellCache(upstream.URL, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/checkout", nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	rec := httptest.NewRecorder()
	sc.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.NotEmpty(t, rec.Body.String())
}

func TestShellCacheBadGatewayForNonNavigation(t *testing.T) {
	upstream, _ := newShellUpstream(t)
	upstream.Close()

	sc, err := NewShellCache(upstream.URL, nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	sc.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app.js", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestShellCacheNeverCachesAPIRequests(t *testing.T) {
	upstream, hits := newShellUpstream(t)
	sc, err := NewShellCache(upstream.URL, nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	sc.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sales", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Zero(t, atomic.LoadInt64(hits))
}

func TestShellCacheRejectsWrites(t *testing.T) {
	upstream, _ := newShellUpstream(t)
	sc, err := NewShellCache(upstream.URL, nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	sc.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/index.html", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestShellCacheUpstreamErrorsNotCached(t *testing.T) {
	upstream, hits := newShellUpstream(t)
	sc, err := NewShellCache(upstream.URL, nil)
	require.NoError(t, err)

	// 404 from the upstream is not cached; the next request retries.
	rec := httptest.NewRecorder()
	sc.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing.css", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = httptest.NewRecorder()
	sc.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing.css", nil))
	assert.Equal(t, int64(2), atomic.LoadInt64(hits))
}

func TestShellCacheInvalidate(t *testing.T) {
	upstream, hits := newShellUpstream(t)
	sc, err := NewShellCache(upstream.URL, nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	sc.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/index.html", nil))
	rec = httptest.NewRecorder()
	sc.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app.js", nil))

	assert.Equal(t, 2, sc.Invalidate())
	assert.Equal(t, 0, sc.Invalidate())

	rec = httptest.NewRecorder()
	sc.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/index.html", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(3), atomic.LoadInt64(hits))
}

func TestShellCacheHeadOmitsBody(t *testing.T) {
	upstream, _ := newShellUpstream(t)
	sc, err := NewShellCache(upstream.URL, nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	sc.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/index.html", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}
