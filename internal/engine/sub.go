package engine

import (
	"github.com/p-blackswan/session-mirror/internal/persist"
	"github.com/p-blackswan/session-mirror/lru"
)

const (
	keyViewState       = "view-state@v2"
	keyViewStateLegacy = "view-state"
	keyComments        = "comments"
)

// ViewState is the per-session UI state worth surviving a session
// switch: viewport anchor, draft input, collapsed parts.
type ViewState struct {
	SessionID string   `json:"sessionID"`
	Anchor    string   `json:"anchor,omitempty"` // message pinned to viewport top
	Follow    bool     `json:"follow"`           // auto-scroll on new output
	Draft     string   `json:"draft,omitempty"`
	Collapsed []string `json:"collapsed,omitempty"`
}

// ViewCache keeps the most recently used view states live. Evicted
// states are written to the session's persistence scope and hydrated
// back on the next Get, so switching between many sessions never loses
// scroll position or drafts. The active session is pinned against
// eviction.
type ViewCache struct {
	store *persist.Store
	dir   string
	cache *lru.Cache[string, *ViewState]
}

func newViewCache(store *persist.Store, directory string, maxEntries int) *ViewCache {
	v := &ViewCache{store: store, dir: directory}
	v.cache = lru.New(maxEntries,
		lru.WithDisposal[string, *ViewState](func(sid string, st *ViewState) {
			store.Session(directory, sid).Put(keyViewState, st)
		}),
	)
	return v
}

// Get returns the view state for a session, hydrating from persistence
// or creating a fresh one with follow enabled.
func (v *ViewCache) Get(sessionID string) *ViewState {
	if st, ok := v.cache.Get(sessionID); ok {
		return st
	}
	st := &ViewState{SessionID: sessionID, Follow: true}
	v.store.Session(v.dir, sessionID).GetWithFallback(st, keyViewState, keyViewStateLegacy)
	st.SessionID = sessionID
	v.cache.Put(sessionID, st)
	return st
}

// Put stores an updated view state, marking it most recently used.
func (v *ViewCache) Put(st *ViewState) {
	v.cache.Put(st.SessionID, st)
}

// SetActive pins a session's view state so it is never evicted while
// the session is in the foreground. An empty id clears the pin.
func (v *ViewCache) SetActive(sessionID string) {
	if sessionID == "" {
		v.cache.Unprotect()
		return
	}
	v.Get(sessionID)
	v.cache.Protect(sessionID)
}

// Forget drops a session's view state without persisting it. Used when
// the session itself is deleted.
func (v *ViewCache) Forget(sessionID string) {
	v.cache.Delete(sessionID)
	v.store.Session(v.dir, sessionID).Delete(keyViewState)
}

// Flush persists every live view state. Called on instance teardown.
func (v *ViewCache) Flush() {
	v.cache.Unprotect()
	v.cache.Clear()
}

// Comment is a user annotation pinned to a file location within a
// session.
type Comment struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
	Path      string `json:"path"`
	Line      int    `json:"line"`
	Text      string `json:"text"`
	Time      int64  `json:"time"`
}

type subEntry[V any] struct {
	val    V
	handle *Handle
}

// SubCache is a bounded collection of per-key sub-scopes. Every entry
// owns a Handle released when the entry is evicted, disposed, or the
// cache is cleared, so whatever teardown the entry needs (persistence
// flush, subscription release) runs exactly once.
type SubCache[V any] struct {
	cache *lru.Cache[string, *subEntry[V]]
}

// NewSubCache creates a sub-scope cache bounded to maxEntries.
func NewSubCache[V any](maxEntries int) *SubCache[V] {
	s := &SubCache[V]{}
	s.cache = lru.New(maxEntries,
		lru.WithDisposal[string, *subEntry[V]](func(_ string, e *subEntry[V]) {
			if e.handle != nil {
				e.handle.Dispose()
			}
		}),
	)
	return s
}

// Get returns the value for key, marking it most recently used.
func (s *SubCache[V]) Get(key string) (V, bool) {
	e, ok := s.cache.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	return e.val, true
}

// Put inserts a value with an optional teardown handle. Replacing an
// existing key disposes the old entry's handle first.
func (s *SubCache[V]) Put(key string, val V, handle *Handle) {
	s.Dispose(key)
	s.cache.Put(key, &subEntry[V]{val: val, handle: handle})
}

// Dispose removes a key, running its handle. Returns true if it existed.
func (s *SubCache[V]) Dispose(key string) bool {
	return s.cache.Dispose(key)
}

// Keys returns cached keys from most to least recently used.
func (s *SubCache[V]) Keys() []string { return s.cache.Keys() }

// Len returns the number of live sub-scopes.
func (s *SubCache[V]) Len() int { return s.cache.Len() }

// Clear disposes every entry.
func (s *SubCache[V]) Clear() { s.cache.Clear() }
