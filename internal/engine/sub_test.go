package engine

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/session-mirror/internal/persist"
)

func newTestStore(t *testing.T) *persist.Store {
	t.Helper()
	store, err := persist.Open(filepath.Join(t.TempDir(), "mirror.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestViewCache_EvictionPersistsAndRehydrates(t *testing.T) {
	store := newTestStore(t)
	v := newViewCache(store, "/work/a", 2)

	a := v.Get("ses_a")
	a.Draft = "unsent reply"
	a.Anchor = "msg_5"
	v.Put(a)

	// Two more sessions push ses_a out of the cap-2 cache.
	v.Get("ses_b")
	v.Get("ses_c")

	back := v.Get("ses_a")
	assert.Equal(t, "unsent reply", back.Draft)
	assert.Equal(t, "msg_5", back.Anchor)
}

func TestViewCache_ActiveSessionSurvivesEviction(t *testing.T) {
	store := newTestStore(t)
	v := newViewCache(store, "/work/a", 2)

	active := v.Get("ses_active")
	active.Draft = "in progress"
	v.SetActive("ses_active")

	v.Get("ses_b")
	v.Get("ses_c")
	v.Get("ses_d")

	got, ok := v.cache.Peek("ses_active")
	require.True(t, ok, "active session must never be evicted")
	assert.Equal(t, "in progress", got.Draft)
	assert.LessOrEqual(t, v.cache.Len(), 3, "cap plus the protected key")
}

func TestViewCache_FreshStateFollows(t *testing.T) {
	v := newViewCache(newTestStore(t), "/work/a", 2)
	st := v.Get("ses_new")
	assert.True(t, st.Follow, "new sessions auto-scroll")
	assert.Equal(t, "ses_new", st.SessionID)
}

func TestViewCache_FlushPersistsEverything(t *testing.T) {
	store := newTestStore(t)
	v := newViewCache(store, "/work/a", 5)

	v.Get("ses_a").Draft = "one"
	v.Get("ses_b").Draft = "two"
	v.Flush()

	v2 := newViewCache(store, "/work/a", 5)
	assert.Equal(t, "one", v2.Get("ses_a").Draft)
	assert.Equal(t, "two", v2.Get("ses_b").Draft)
}

func TestViewCache_ForgetDropsPersistedState(t *testing.T) {
	store := newTestStore(t)
	v := newViewCache(store, "/work/a", 5)

	v.Get("ses_a").Draft = "gone"
	v.Flush()
	v.Forget("ses_a")

	v2 := newViewCache(store, "/work/a", 5)
	assert.Empty(t, v2.Get("ses_a").Draft)
}

func TestSubCache_EvictionDisposesHandle(t *testing.T) {
	s := NewSubCache[string](2)

	var disposed []string
	put := func(key string) {
		s.Put(key, key, NewHandle(func() { disposed = append(disposed, key) }))
	}
	put("a")
	put("b")
	put("c")

	assert.Equal(t, []string{"a"}, disposed, "LRU entry disposed on overflow")
	assert.Equal(t, 2, s.Len())

	_, ok := s.Get("a")
	assert.False(t, ok)
}

func TestSubCache_ReplaceDisposesOldHandle(t *testing.T) {
	s := NewSubCache[int](4)

	oldDisposed := false
	s.Put("k", 1, NewHandle(func() { oldDisposed = true }))
	s.Put("k", 2, nil)

	assert.True(t, oldDisposed)
	v, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, s.Len())
}

func TestSubCache_ClearDisposesAll(t *testing.T) {
	s := NewSubCache[int](4)

	var n int
	s.Put("a", 1, NewHandle(func() { n++ }))
	s.Put("b", 2, NewHandle(func() { n++ }))
	s.Clear()

	assert.Equal(t, 2, n)
	assert.Equal(t, 0, s.Len())
}

func TestHandle_DisposeIsIdempotent(t *testing.T) {
	var n int
	h := NewHandle(func() { n++ })
	h.Dispose()
	h.Dispose()
	assert.Equal(t, 1, n)
}

func TestScopeRegistry_DisposesInReverseOrder(t *testing.T) {
	r := newScopeRegistry()

	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		r.Add(NewHandle(func() { order = append(order, i) }))
	}
	r.DisposeAll()

	assert.Equal(t, []int{3, 2, 1}, order)
	r.DisposeAll() // second call is a no-op
	assert.Len(t, order, 3)
}
