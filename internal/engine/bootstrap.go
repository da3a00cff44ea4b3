package engine

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/p-blackswan/session-mirror/internal/api"
	"github.com/p-blackswan/session-mirror/internal/retention"
	"github.com/p-blackswan/session-mirror/internal/retry"
	"github.com/p-blackswan/session-mirror/internal/state"
)

// yieldToScheduler gives other goroutines a turn between bootstrap
// batches so event dispatch is never starved by a long queue.
func yieldToScheduler() { runtime.Gosched() }

// Scheduler serializes bootstrap work: one drain goroutine consumes the
// deduplicated directory queue, running at most `concurrency`
// per-workspace bootstraps at a time. A root refresh always runs alone,
// ahead of any queued workspace.
type Scheduler struct {
	engine      *Engine
	concurrency int

	mu       sync.Mutex
	queued   map[string]struct{}
	order    []string
	rootDue  bool
	paused   bool
	draining bool
}

func newScheduler(e *Engine, concurrency int) *Scheduler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Scheduler{
		engine:      e,
		concurrency: concurrency,
		queued:      make(map[string]struct{}),
	}
}

// Enqueue requests a bootstrap for a directory. Re-requesting a
// directory that is already queued is a no-op.
func (s *Scheduler) Enqueue(directory string) {
	s.mu.Lock()
	if _, ok := s.queued[directory]; !ok {
		s.queued[directory] = struct{}{}
		s.order = append(s.order, directory)
	}
	s.mu.Unlock()
	s.kick()
}

// RequestRoot schedules a global refresh ahead of any queued workspace.
func (s *Scheduler) RequestRoot() {
	s.mu.Lock()
	s.rootDue = true
	s.mu.Unlock()
	s.kick()
}

// Pause stops new bootstraps from starting. Queued work is kept and
// consumed on Resume.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

// Resume un-pauses the scheduler and re-queues a full root refresh,
// since whatever caused the pause (a remote config write) may have
// changed global state.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	s.paused = false
	s.rootDue = true
	s.mu.Unlock()
	s.kick()
}

// Pending reports whether any work is queued. Used by tests and the
// status API.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rootDue || len(s.order) > 0
}

// kick arms the drain goroutine if it is not already running. The
// draining flag doubles as the finalizer: the loop only clears it after
// observing an empty queue, so work enqueued while it finishes is still
// picked up.
func (s *Scheduler) kick() {
	s.mu.Lock()
	if s.paused || s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	s.mu.Unlock()
	go s.drain()
}

func (s *Scheduler) drain() {
	ctx := s.engine.ctx
	for {
		s.mu.Lock()
		if s.paused || ctx.Err() != nil || (!s.rootDue && len(s.order) == 0) {
			s.draining = false
			s.mu.Unlock()
			return
		}
		root := s.rootDue
		s.rootDue = false
		var batch []string
		if !root {
			n := s.concurrency
			if n > len(s.order) {
				n = len(s.order)
			}
			batch = append(batch, s.order[:n]...)
			s.order = append(s.order[:0:0], s.order[n:]...)
			for _, d := range batch {
				delete(s.queued, d)
			}
		}
		s.mu.Unlock()

		if root {
			s.engine.rootBootstrap(ctx)
			yieldToScheduler()
			continue
		}

		var wg sync.WaitGroup
		for _, dir := range batch {
			wg.Add(1)
			s.engine.metrics.BootstrapsInFlight.Inc()
			go func(dir string) {
				defer wg.Done()
				defer s.engine.metrics.BootstrapsInFlight.Dec()
				s.engine.workspaceBootstrap(ctx, dir)
			}(dir)
		}
		wg.Wait()
		yieldToScheduler()
	}
}

// retryConfig returns the default retry policy with retries counted
// and logged per resource.
func (e *Engine) retryConfig(directory, resource string) retry.Config {
	rc := retry.DefaultConfig()
	rc.OnRetry = func(attempt int, err error, _ time.Duration) {
		e.metrics.RecordRemoteRetry(resource)
		e.logger.Debug().Err(err).Int("attempt", attempt).
			Str("directory", directory).Str("resource", resource).
			Msg("retrying remote call")
	}
	return rc
}

// rootBootstrap refreshes the global pseudo-workspace: project list,
// global config, providers, provider auth, and server paths. Every call
// is retry-wrapped; any final failure surfaces a notification and
// leaves the previous global state in place.
func (e *Engine) rootBootstrap(ctx context.Context) {
	client := e.factory.Global()

	var (
		projects  []api.Project
		remoteCfg *api.RemoteConfig
		providers []api.Provider
		auth      []api.ProviderAuth
		path      *api.Path
	)
	steps := []struct {
		name string
		fn   func(ctx context.Context) error
	}{
		{"project.list", func(ctx context.Context) (err error) { projects, err = client.ProjectList(ctx); return }},
		{"config.get", func(ctx context.Context) (err error) { remoteCfg, err = client.ConfigGet(ctx); return }},
		{"provider.list", func(ctx context.Context) (err error) { providers, err = client.ProviderList(ctx); return }},
		{"provider.auth", func(ctx context.Context) (err error) { auth, err = client.ProviderAuth(ctx); return }},
		{"path.get", func(ctx context.Context) (err error) { path, err = client.PathGet(ctx); return }},
	}
	for _, step := range steps {
		if err := retry.Do(ctx, e.retryConfig("", step.name), step.fn); err != nil {
			e.metrics.RecordRemoteError(step.name)
			e.metrics.RecordBootstrap("root", "error")
			e.notify(Notification{Level: LevelError, Resource: step.name, Err: err})
			return
		}
	}

	sort.Slice(projects, func(i, j int) bool { return projects[i].ID < projects[j].ID })
	e.global.Update(func(t *state.Tree) {
		t.Projects = projects
		t.Config = remoteCfg
		t.Providers = providers
		t.Auth = auth
		t.Path = path
		t.Status = state.StatusComplete
	})
	e.metrics.RecordBootstrap("root", "ok")
	e.logger.Debug().Int("projects", len(projects)).Msg("root bootstrap complete")
}

// workspaceBootstrap pulls one workspace's full state. The blocking
// phase (project, providers, agents, config) is all-or-nothing: any
// failure surfaces a notification, leaves status partial, and skips the
// best-effort phase this cycle. Best-effort resources are fetched
// independently so one failing endpoint does not block the rest; status
// becomes complete once every best-effort task has settled.
func (e *Engine) workspaceBootstrap(ctx context.Context, directory string) {
	in := e.ChildNoBootstrap(directory)
	client := in.client

	var (
		project   *api.Project
		providers []api.Provider
		agents    []api.Agent
		remoteCfg *api.RemoteConfig
	)
	blocking := []struct {
		name string
		fn   func(ctx context.Context) error
	}{
		{"project.current", func(ctx context.Context) (err error) { project, err = client.ProjectCurrent(ctx); return }},
		{"provider.list", func(ctx context.Context) (err error) { providers, err = client.ProviderList(ctx); return }},
		{"agent.list", func(ctx context.Context) (err error) { agents, err = client.AgentList(ctx); return }},
		{"config.get", func(ctx context.Context) (err error) { remoteCfg, err = client.ConfigGet(ctx); return }},
	}
	for _, step := range blocking {
		if err := retry.Do(ctx, e.retryConfig(directory, step.name), step.fn); err != nil {
			e.metrics.RecordRemoteError(step.name)
			e.metrics.RecordBootstrap("workspace", "error")
			e.notify(Notification{Level: LevelError, Directory: directory, Resource: step.name, Err: err})
			in.ws.Update(func(t *state.Tree) { t.Status = state.StatusPartial })
			return
		}
	}

	in.ws.Update(func(t *state.Tree) {
		t.Project = project
		if project != nil {
			t.ProjectID = project.ID
		}
		t.Providers = providers
		t.Agents = agents
		t.Config = remoteCfg
		t.Status = state.StatusPartial
	})

	// Best-effort phase. Each task fetches independently and applies
	// its own atomic mutation; failures are logged and skipped.
	tasks := []struct {
		name string
		fn   func(ctx context.Context) error
	}{
		{"path.get", func(ctx context.Context) error {
			path, err := client.PathGet(ctx)
			if err != nil {
				return err
			}
			in.ws.Update(func(t *state.Tree) { t.Path = path })
			return nil
		}},
		{"command.list", func(ctx context.Context) error {
			commands, err := client.CommandList(ctx)
			if err != nil {
				return err
			}
			in.ws.Update(func(t *state.Tree) { t.Commands = commands })
			return nil
		}},
		{"session.list", func(ctx context.Context) error {
			return e.refreshSessions(ctx, in)
		}},
		{"session.status", func(ctx context.Context) error {
			statuses, err := client.SessionStatus(ctx)
			if err != nil {
				return err
			}
			in.ws.Update(func(t *state.Tree) {
				for _, st := range statuses {
					t.SessionStatus[st.SessionID] = st
				}
			})
			return nil
		}},
		{"mcp.status", func(ctx context.Context) error {
			mcp, err := client.MCPStatus(ctx)
			if err != nil {
				return err
			}
			in.ws.Update(func(t *state.Tree) { t.MCP = mcp })
			return nil
		}},
		{"lsp.status", func(ctx context.Context) error {
			lsp, err := client.LSPStatus(ctx)
			if err != nil {
				return err
			}
			in.ws.Update(func(t *state.Tree) { t.LSP = lsp })
			return nil
		}},
		{"vcs.get", func(ctx context.Context) error {
			vcs, err := client.VCSGet(ctx)
			if err != nil {
				return err
			}
			in.ws.Update(func(t *state.Tree) { t.VCS = *vcs })
			return nil
		}},
		{"permission.list", func(ctx context.Context) error {
			perms, err := client.PermissionList(ctx)
			if err != nil {
				return err
			}
			in.ws.Update(func(t *state.Tree) {
				for _, p := range perms {
					t.UpsertPermission(p)
				}
			})
			return nil
		}},
		{"question.list", func(ctx context.Context) error {
			questions, err := client.QuestionList(ctx)
			if err != nil {
				return err
			}
			in.ws.Update(func(t *state.Tree) {
				for _, q := range questions {
					t.UpsertQuestion(q)
				}
			})
			return nil
		}},
	}
	for _, task := range tasks {
		if err := task.fn(ctx); err != nil {
			e.metrics.RecordRemoteError(task.name)
			in.logger.Warn().Err(err).Str("resource", task.name).Msg("bootstrap resource failed")
		}
	}

	in.ws.Update(func(t *state.Tree) { t.Status = state.StatusComplete })
	e.metrics.RecordBootstrap("workspace", "ok")
	in.logger.Debug().Msg("workspace bootstrap complete")
}

// refreshSessions refetches the full remote session list, applies the
// retention policy, and replaces the tree's session slice in one
// transaction. Sessions that fell out of retention are purged with the
// same cascade a delete event uses.
func (e *Engine) refreshSessions(ctx context.Context, in *Instance) error {
	sessions, err := in.client.SessionList(ctx)
	if err != nil {
		return err
	}

	in.ws.Update(func(t *state.Tree) {
		e.retainSessions(t, sessions)
	})
	e.metrics.SetSessionsRetained(in.Directory, float64(sessionCount(in)))
	return nil
}

// retainSessions trims the candidate list and replaces the tree's
// session slice, cascading deletes for every session that fell out.
// Must run inside an Update transaction.
func (e *Engine) retainSessions(t *state.Tree, candidates []*api.Session) {
	kept := retention.Trim(candidates, retention.Options{
		Limit:         e.cfg.SessionLimit,
		RecentCap:     e.cfg.RecentCap,
		RecentWindow:  e.cfg.RecentWindow,
		HasPermission: t.HasPendingPermission,
	})
	keptIDs := make(map[string]bool, len(kept))
	for _, s := range kept {
		keptIDs[s.ID] = true
	}
	var dropped []string
	for _, s := range t.Sessions {
		if !keptIDs[s.ID] {
			dropped = append(dropped, s.ID)
		}
	}
	for _, id := range dropped {
		t.DeleteSession(id)
	}
	t.Sessions = kept
}

func sessionCount(in *Instance) int {
	var n int
	in.ws.Read(func(t *state.Tree) { n = len(t.Sessions) })
	return n
}
