package cleanup

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/session-mirror/internal/persist"
)

type fakePruner struct {
	cutoffs []time.Time
	pruned  int64
	err     error
}

func (f *fakePruner) PruneSessionData(cutoff time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.pruned, f.err
}

func TestSweepOnce_UsesMaxAgeCutoff(t *testing.T) {
	p := &fakePruner{pruned: 3}
	c := New(p, Config{MaxAge: 48 * time.Hour, CheckInterval: time.Hour}, zerolog.Nop())

	now := time.Now()
	n, err := c.SweepOnce(now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.Len(t, p.cutoffs, 1)
	assert.Equal(t, now.Add(-48*time.Hour), p.cutoffs[0])
}

func TestNew_ZeroConfigFallsBackToDefaults(t *testing.T) {
	c := New(&fakePruner{}, Config{}, zerolog.Nop())
	assert.Equal(t, DefaultConfig().MaxAge, c.config.MaxAge)
	assert.Equal(t, DefaultConfig().CheckInterval, c.config.CheckInterval)
}

func TestSweep_AgainstRealStore(t *testing.T) {
	store, err := persist.Open(filepath.Join(t.TempDir(), "mirror.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	store.Session("/work/a", "ses_old").Put("view-state@v2", map[string]string{"draft": "x"})
	store.Workspace("/work/a").Put("vcs@v2", map[string]string{"branch": "main"})

	c := New(store, Config{MaxAge: time.Hour, CheckInterval: time.Hour}, zerolog.Nop())

	// Rows were just written: a sweep anchored at now removes nothing.
	n, err := c.SweepOnce(time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)

	// Anchored far in the future, the session row ages out while the
	// workspace row is untouchable.
	n, err = c.SweepOnce(time.Now().Add(30 * 24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var out map[string]string
	assert.False(t, store.Session("/work/a", "ses_old").Get("view-state@v2", &out))
	assert.True(t, store.Workspace("/work/a").Get("vcs@v2", &out))
}
