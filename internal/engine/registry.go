package engine

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/session-mirror/internal/api"
	"github.com/p-blackswan/session-mirror/internal/persist"
	"github.com/p-blackswan/session-mirror/internal/state"
)

const (
	keyVCS               = "vcs@v2"
	keyVCSLegacy         = "vcs"
	keyProjectMeta       = "project-meta@v2"
	keyProjectMetaLegacy = "project-meta"
	keyProjectIcon       = "project-icon"
)

// Instance is everything the engine holds for one workspace directory:
// the observable state tree, the directory-scoped client, the bounded
// side caches, and the handles that tear the lot down.
type Instance struct {
	Directory string

	ws        *state.Workspace
	client    *api.Client
	store     *persist.Store
	files     *FileCache
	views     *ViewCache
	comments  *SubCache[[]Comment]
	terminals *SubCache[*api.Pty]
	scopes    *scopeRegistry
	logger    zerolog.Logger

	// lsp.updated events coalesce into at most one in-flight pull.
	lspMu      sync.Mutex
	lspRunning bool
	lspDirty   bool
}

// State returns the instance's observable workspace tree.
func (in *Instance) State() *state.Workspace { return in.ws }

// Client returns the directory-scoped remote client.
func (in *Instance) Client() *api.Client { return in.client }

// Files returns the bounded file content cache.
func (in *Instance) Files() *FileCache { return in.files }

// Views returns the per-session view state cache.
func (in *Instance) Views() *ViewCache { return in.views }

// Terminals returns the pty sub-cache, keyed by pty id.
func (in *Instance) Terminals() *SubCache[*api.Pty] { return in.terminals }

// Comments returns a session's comments, hydrating them from the
// session's persistence scope on first access.
func (in *Instance) Comments(sessionID string) []Comment {
	if cs, ok := in.comments.Get(sessionID); ok {
		return cs
	}
	var cs []Comment
	in.store.Session(in.Directory, sessionID).Get(keyComments, &cs)
	in.comments.Put(sessionID, cs, nil)
	return cs
}

// SetComments replaces a session's comments, writing them through to
// the session's persistence scope so eviction cannot lose them.
func (in *Instance) SetComments(sessionID string, cs []Comment) {
	in.store.Session(in.Directory, sessionID).Put(keyComments, cs)
	in.comments.Put(sessionID, cs, nil)
}

func (in *Instance) dispose() {
	in.scopes.DisposeAll()
	in.views.Flush()
	in.comments.Clear()
	in.terminals.Clear()
	in.files.clear()
}

// Child returns the instance for a workspace directory, creating it on
// first use. Creation allocates a loading-state tree, seeds the side
// caches from persistence, and enqueues a bootstrap.
func (e *Engine) Child(directory string) *Instance {
	in, created := e.child(directory)
	if created {
		e.sched.Enqueue(directory)
	}
	return in
}

// ChildNoBootstrap is Child without scheduling a bootstrap, for callers
// that only need read access to an instance (pagination, status API).
func (e *Engine) ChildNoBootstrap(directory string) *Instance {
	in, _ := e.child(directory)
	return in
}

// Lookup returns an existing instance without creating one.
func (e *Engine) Lookup(directory string) (*Instance, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	in, ok := e.instances[directory]
	return in, ok
}

// Directories returns the tracked workspace directories, sorted.
func (e *Engine) Directories() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	dirs := make([]string, 0, len(e.instances))
	for d := range e.instances {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}

// Global returns the cross-workspace pseudo-workspace holding the
// project list, global config, providers, and auth.
func (e *Engine) Global() *state.Workspace { return e.global }

func (e *Engine) child(directory string) (*Instance, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if in, ok := e.instances[directory]; ok {
		return in, false
	}

	in := &Instance{
		Directory: directory,
		ws:        state.NewWorkspace(directory),
		client:    e.factory.Client(directory),
		store:     e.store,
		scopes:    newScopeRegistry(),
		logger:    e.logger.With().Str("directory", directory).Logger(),
	}
	in.files = newFileCache(in.client, e.cfg.FileCacheEntries, e.cfg.FileCacheBytes, func(string) {
		e.metrics.RecordEviction("files")
	})
	in.views = newViewCache(e.store, directory, e.cfg.ViewStateEntries)
	in.comments = NewSubCache[[]Comment](e.cfg.SubCacheEntries)
	in.terminals = NewSubCache[*api.Pty](e.cfg.SubCacheEntries)

	e.seed(in)
	in.scopes.Add(e.bridgePersist(in))

	e.instances[directory] = in
	e.logger.Info().Str("directory", directory).Msg("workspace registered")
	return in, true
}

// seed copies persisted side-cache values into the fresh tree so the
// UI has a branch name and project metadata before the first bootstrap
// completes. Runs once per instance; the live value is authoritative
// afterwards.
func (e *Engine) seed(in *Instance) {
	scope := e.store.Workspace(in.Directory)

	var vcs api.VCSInfo
	var meta api.Project
	var icon string
	haveVCS := scope.GetWithFallback(&vcs, keyVCS, keyVCSLegacy)
	haveMeta := scope.GetWithFallback(&meta, keyProjectMeta, keyProjectMetaLegacy)
	haveIcon := scope.Get(keyProjectIcon, &icon)

	if !haveVCS && !haveMeta {
		return
	}
	in.ws.Update(func(t *state.Tree) {
		if haveVCS {
			t.VCS = vcs
		}
		if haveMeta {
			if haveIcon && meta.Icon == "" {
				meta.Icon = icon
			}
			t.Project = &meta
		}
	})
}

// bridgePersist writes VCS and project metadata back to the workspace
// persistence scope whenever they change, so the next startup can seed
// from them.
func (e *Engine) bridgePersist(in *Instance) *Handle {
	scope := e.store.Workspace(in.Directory)

	var lastVCS api.VCSInfo
	var lastMeta api.Project
	unsub := in.ws.Subscribe(func() {
		var vcs api.VCSInfo
		var meta *api.Project
		in.ws.Read(func(t *state.Tree) {
			vcs = t.VCS
			if t.Project != nil {
				cp := *t.Project
				meta = &cp
			}
		})
		if vcs != lastVCS {
			lastVCS = vcs
			scope.Put(keyVCS, vcs)
		}
		if meta != nil && *meta != lastMeta {
			lastMeta = *meta
			scope.Put(keyProjectMeta, meta)
			scope.Put(keyProjectIcon, meta.Icon)
		}
	})
	return NewHandle(unsub)
}
