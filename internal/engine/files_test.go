package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/session-mirror/internal/api"
)

func newTestFileCache(t *testing.T, maxEntries int, maxBytes int64, handler http.HandlerFunc) *FileCache {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := api.NewClient(api.Options{BaseURL: srv.URL}, "/work/a", zerolog.Nop())
	return newFileCache(client, maxEntries, maxBytes, nil)
}

func serveFiles(contents map[string]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Query().Get("path")
		content, ok := contents[path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(api.FileContent{Path: path, Name: path, Content: content})
	}
}

func TestFileCache_GetCachesContent(t *testing.T) {
	var calls atomic.Int32
	f := newTestFileCache(t, 4, 0, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		serveFiles(map[string]string{"a.go": "package a\n"})(w, r)
	})

	e1, err := f.Get(context.Background(), "a.go", false)
	require.NoError(t, err)
	assert.Equal(t, StateLoaded, e1.State)
	assert.Equal(t, "package a\n", e1.Content)

	e2, err := f.Get(context.Background(), "a.go", false)
	require.NoError(t, err)
	assert.Same(t, e1, e2)
	assert.Equal(t, int32(1), calls.Load(), "second Get must hit the cache")

	_, err = f.Get(context.Background(), "a.go", true)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "force refetches")
}

func TestFileCache_EvictionClearsOnlyContent(t *testing.T) {
	f := newTestFileCache(t, 1, 0, serveFiles(map[string]string{
		"a.go": "aaa",
		"b.go": "bbb",
	}))

	_, err := f.Get(context.Background(), "a.go", false)
	require.NoError(t, err)
	_, err = f.Get(context.Background(), "b.go", false)
	require.NoError(t, err)

	a, ok := f.Peek("a.go")
	require.True(t, ok, "metadata survives eviction")
	assert.Equal(t, StateAbsent, a.State)
	assert.Empty(t, a.Content)

	b, ok := f.Peek("b.go")
	require.True(t, ok)
	assert.Equal(t, StateLoaded, b.State)
	assert.Equal(t, "bbb", b.Content)
}

func TestFileCache_ByteBudget(t *testing.T) {
	big := strings.Repeat("x", 600)
	f := newTestFileCache(t, 10, 1000, serveFiles(map[string]string{
		"a.go": big,
		"b.go": big,
	}))

	_, err := f.Get(context.Background(), "a.go", false)
	require.NoError(t, err)
	_, err = f.Get(context.Background(), "b.go", false)
	require.NoError(t, err)

	assert.Equal(t, 1, f.Len(), "two 600-byte files exceed the 1000-byte budget")
	assert.LessOrEqual(t, f.Bytes(), int64(1000))
}

func TestFileCache_ErrorState(t *testing.T) {
	f := newTestFileCache(t, 4, 0, serveFiles(nil))

	e, err := f.Get(context.Background(), "missing.go", false)
	require.Error(t, err)
	assert.Equal(t, StateError, e.State)
	assert.Error(t, e.Err)
}

func TestFileCache_ConcurrentLoadsDeduplicated(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	f := newTestFileCache(t, 4, 0, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		serveFiles(map[string]string{"a.go": "aaa"})(w, r)
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, err := f.Get(context.Background(), "a.go", false)
			assert.NoError(t, err)
			assert.Equal(t, "aaa", e.Content)
		}()
	}
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(), "concurrent loads share one fetch")
}
