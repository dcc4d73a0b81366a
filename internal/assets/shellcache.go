// Package assets serves the static application shell through a read-through
// cache so the POS front-end can load while the shell upstream is down. It
// has no interaction with sale data; API requests are never cached here.
package assets

import (
	_ "embed"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"pos-edge-agent/internal/util"

	"go.uber.org/zap"
)

//go:embed offline.html
var offlinePage []byte

type cachedResponse struct {
	status      int
	contentType string
	body        []byte
}

// ShellCache is a cache-first HTTP handler for shell assets: cached copies
// are served when present, misses go to the upstream and populate the cache,
// and HTML navigations get an offline fallback page when both fail.
type ShellCache struct {
	upstream *url.URL
	client   *http.Client
	logger   *zap.Logger

	mu      sync.RWMutex
	entries map[string]*cachedResponse
}

// NewShellCache creates a shell cache in front of the given upstream URL.
func NewShellCache(upstreamURL string, client *http.Client) (*ShellCache, error) {
	u, err := url.Parse(upstreamURL)
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &ShellCache{
		upstream: u,
		client:   client,
		logger:   util.GetLogger(),
		entries:  make(map[string]*cachedResponse),
	}, nil
}

// Invalidate drops every cached asset. The next request for each path goes
// back to the upstream.
func (sc *ShellCache) Invalidate() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	n := len(sc.entries)
	sc.entries = make(map[string]*cachedResponse)
	return n
}

func (sc *ShellCache) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	// API traffic belongs to the durable store path, never this cache.
	if strings.HasPrefix(r.URL.Path, "/api/") {
		http.NotFound(w, r)
		return
	}

	key := r.URL.Path

	sc.mu.RLock()
	entry, ok := sc.entries[key]
	sc.mu.RUnlock()
	if ok {
		util.ShellCacheServesTotal.WithLabelValues("cache").Inc()
		sc.write(w, r, entry)
		return
	}

	entry, err := sc.fetch(r)
	if err == nil {
		sc.mu.Lock()
		sc.entries[key] = entry
		sc.mu.Unlock()
		util.ShellCacheServesTotal.WithLabelValues("network").Inc()
		sc.write(w, r, entry)
		return
	}

	sc.logger.Warn("Shell upstream unavailable",
		zap.String("path", key),
		zap.Error(err))

	if isNavigation(r) {
		util.ShellCacheServesTotal.WithLabelValues("fallback").Inc()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write(offlinePage)
		return
	}

	util.ShellCacheServesTotal.WithLabelValues("error").Inc()
	http.Error(w, "shell upstream unavailable", http.StatusBadGateway)
}

func (sc *ShellCache) fetch(r *http.Request) (*cachedResponse, error) {
	target := *sc.upstream
	target.Path = strings.TrimRight(target.Path, "/") + r.URL.Path
	target.RawQuery = r.URL.RawQuery

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", r.Header.Get("Accept"))

	resp, err := sc.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, &upstreamError{status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &cachedResponse{
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		body:        body,
	}, nil
}

func (sc *ShellCache) write(w http.ResponseWriter, r *http.Request, entry *cachedResponse) {
	if entry.contentType != "" {
		w.Header().Set("Content-Type", entry.contentType)
	}
	w.WriteHeader(entry.status)
	if r.Method != http.MethodHead {
		w.Write(entry.body)
	}
}

func isNavigation(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

type upstreamError struct {
	status int
}

func (e *upstreamError) Error() string {
	return http.StatusText(e.status)
}
