package engine

import (
	"context"
	"sync"

	"github.com/p-blackswan/session-mirror/internal/api"
	"github.com/p-blackswan/session-mirror/lru"
)

// LoadState is a resource key's position in the absent → loading →
// loaded | error machine.
type LoadState string

const (
	StateAbsent  LoadState = "absent"
	StateLoading LoadState = "loading"
	StateLoaded  LoadState = "loaded"
	StateError   LoadState = "error"
)

// FileEntry is one cached workspace file. Eviction clears only Content;
// the entry itself (path, name, state) survives so the UI keeps showing
// metadata for files whose payload aged out.
type FileEntry struct {
	Path    string
	Name    string
	Content string
	State   LoadState
	Err     error
}

type fileFlight struct {
	done chan struct{}
	err  error
}

// FileCache is the dual-bounded cache of workspace file content:
// entries are evicted while the count exceeds the entry budget or the
// cumulative content size exceeds the byte budget.
type FileCache struct {
	client  *api.Client
	onEvict func(path string)

	mu       sync.Mutex
	entries  map[string]*FileEntry
	inflight map[string]*fileFlight
	content  *lru.Cache[string, *FileEntry]
}

func newFileCache(client *api.Client, maxEntries int, maxBytes int64, onEvict func(path string)) *FileCache {
	f := &FileCache{
		client:   client,
		onEvict:  onEvict,
		entries:  make(map[string]*FileEntry),
		inflight: make(map[string]*fileFlight),
	}
	f.content = lru.New(maxEntries,
		lru.WithMaxWeight[string, *FileEntry](maxBytes),
		lru.WithDisposal[string, *FileEntry](func(path string, e *FileEntry) {
			// Drop only the heavy payload; metadata stays in f.entries.
			e.Content = ""
			e.State = StateAbsent
			if f.onEvict != nil {
				f.onEvict(path)
			}
		}),
	)
	return f
}

// Get returns the file at path, fetching it if absent, evicted, or
// force is set. Concurrent loads of the same path are deduplicated.
func (f *FileCache) Get(ctx context.Context, path string, force bool) (*FileEntry, error) {
	f.mu.Lock()
	if e, ok := f.entries[path]; ok && e.State == StateLoaded && !force {
		f.content.Touch(path)
		f.mu.Unlock()
		return e, nil
	}
	if fl, ok := f.inflight[path]; ok {
		f.mu.Unlock()
		select {
		case <-fl.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		f.mu.Lock()
		e := f.entries[path]
		f.mu.Unlock()
		return e, fl.err
	}

	fl := &fileFlight{done: make(chan struct{})}
	f.inflight[path] = fl

	e, ok := f.entries[path]
	if !ok {
		e = &FileEntry{Path: path}
		f.entries[path] = e
	}
	e.State = StateLoading
	e.Err = nil
	f.mu.Unlock()

	got, err := f.client.FileRead(ctx, path)

	f.mu.Lock()
	if err != nil {
		e.State = StateError
		e.Err = err
	} else {
		e.Name = got.Name
		e.Content = got.Content
		e.State = StateLoaded
		e.Err = nil
		f.content.PutWeighted(path, e, int64(len(e.Content))+1)
	}
	delete(f.inflight, path)
	f.mu.Unlock()

	fl.err = err
	close(fl.done)
	return e, err
}

// Peek returns the cached entry without fetching or touching it.
func (f *FileCache) Peek(path string) (*FileEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[path]
	return e, ok
}

// Invalidate drops a path's payload so the next Get refetches it. Used
// when the file watcher reports a change.
func (f *FileCache) Invalidate(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[path]
	if ok && e.State == StateLoaded {
		// Disposal resets the entry back to absent.
		f.content.Dispose(path)
	}
}

// Len returns the number of entries currently holding content.
func (f *FileCache) Len() int { return f.content.Len() }

// Bytes returns the cumulative cached content weight.
func (f *FileCache) Bytes() int64 { return f.content.Weight() }

func (f *FileCache) clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.content.Clear()
	f.entries = make(map[string]*FileEntry)
}
