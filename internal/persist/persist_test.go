package persist

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "mirror.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_ReadyGateClosed(t *testing.T) {
	s := newStore(t)
	select {
	case <-s.Ready():
	default:
		t.Fatal("Ready must be closed after Open returns")
	}
}

func TestScopeIsolation(t *testing.T) {
	s := newStore(t)

	s.Global().Put("theme", "dark")
	s.Workspace("/work/a").Put("theme", "light")
	s.Session("/work/a", "ses_1").Put("theme", "solarized")

	var v string
	require.True(t, s.Global().Get("theme", &v))
	assert.Equal(t, "dark", v)

	require.True(t, s.Workspace("/work/a").Get("theme", &v))
	assert.Equal(t, "light", v)

	require.True(t, s.Session("/work/a", "ses_1").Get("theme", &v))
	assert.Equal(t, "solarized", v)

	assert.False(t, s.Workspace("/work/b").Get("theme", &v))
}

func TestPutOverwrites(t *testing.T) {
	s := newStore(t)
	sc := s.Workspace("/work/a")

	sc.Put("branch", "main")
	sc.Put("branch", "feature/x")

	var v string
	require.True(t, sc.Get("branch", &v))
	assert.Equal(t, "feature/x", v)
}

func TestGetWithFallback_LegacyKeys(t *testing.T) {
	s := newStore(t)
	sc := s.Workspace("/work/a")

	// Only the legacy key exists.
	sc.Put("vcs", "main")

	var v string
	require.True(t, sc.GetWithFallback(&v, "vcs@v2", "vcs"))
	assert.Equal(t, "main", v)

	// Once the current key is written it wins.
	sc.Put("vcs@v2", "feature/y")
	require.True(t, sc.GetWithFallback(&v, "vcs@v2", "vcs"))
	assert.Equal(t, "feature/y", v)
}

func TestStructuredValues(t *testing.T) {
	type meta struct {
		Name string `json:"name"`
		Icon string `json:"icon"`
	}

	s := newStore(t)
	s.Workspace("/work/a").Put("project-meta", meta{Name: "proj", Icon: "rocket"})

	var got meta
	require.True(t, s.Workspace("/work/a").Get("project-meta", &got))
	assert.Equal(t, meta{Name: "proj", Icon: "rocket"}, got)
}

func TestDelete(t *testing.T) {
	s := newStore(t)
	sc := s.Global()

	sc.Put("k", 1)
	sc.Delete("k")

	var v int
	assert.False(t, sc.Get("k", &v))
	// Deleting again is harmless.
	sc.Delete("k")
}

func TestSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mirror.db")

	s1, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	s1.Workspace("/work/a").Put("branch", "main")
	require.NoError(t, s1.Close())

	s2, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	defer s2.Close()

	var v string
	require.True(t, s2.Workspace("/work/a").Get("branch", &v))
	assert.Equal(t, "main", v)
}
