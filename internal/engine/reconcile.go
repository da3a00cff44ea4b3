package engine

import (
	"github.com/p-blackswan/session-mirror/internal/api"
	"github.com/p-blackswan/session-mirror/internal/event"
	"github.com/p-blackswan/session-mirror/internal/state"
)

// Dispatch applies one remote event to the owning workspace's tree as a
// single atomic mutation. It is called from the engine's one dispatch
// goroutine, so events are applied strictly in arrival order. Unknown
// event types are counted and skipped; deletes of absent ids are
// idempotent no-ops.
func (e *Engine) Dispatch(env event.Envelope) {
	switch env.Type {
	case event.TypeServerConnected, event.TypeInstanceDisposed, event.TypeGlobalDisposed:
		// The remote process (re)started or tore down an instance:
		// whatever we mirrored may be stale, so refresh from the root.
		e.sched.RequestRoot()
		for _, dir := range e.Directories() {
			e.sched.Enqueue(dir)
		}
		e.metrics.RecordEvent(env.Type)
		return
	case event.TypeProjectUpdated:
		e.applyProjectUpdated(env)
		return
	}

	if env.Global() {
		e.logger.Debug().Str("type", env.Type).Msg("unhandled global event")
		return
	}

	in := e.Child(env.Directory)
	if e.applyWorkspaceEvent(in, env) {
		e.metrics.RecordEvent(env.Type)
	}
}

func (e *Engine) applyProjectUpdated(env event.Envelope) {
	var p event.ProjectPayload
	if err := env.Decode(&p); err != nil || p.Project == nil {
		e.logger.Warn().Err(err).Str("type", env.Type).Msg("bad event payload")
		return
	}
	e.global.Update(func(t *state.Tree) {
		t.UpsertProject(*p.Project)
	})
	if in, ok := e.Lookup(p.Project.Directory); ok {
		in.ws.Update(func(t *state.Tree) {
			cp := *p.Project
			t.Project = &cp
			t.ProjectID = cp.ID
		})
	}
	e.metrics.RecordEvent(env.Type)
}

func (e *Engine) applyWorkspaceEvent(in *Instance, env event.Envelope) bool {
	log := in.logger
	bad := func(err error) bool {
		log.Warn().Err(err).Str("type", env.Type).Msg("bad event payload")
		return false
	}

	switch env.Type {
	case event.TypeSessionCreated, event.TypeSessionUpdated:
		var p event.SessionPayload
		if err := env.Decode(&p); err != nil || p.Info == nil {
			return bad(err)
		}
		e.applySessionUpsert(in, p.Info)

	case event.TypeSessionDeleted:
		var p event.SessionDeletedPayload
		if err := env.Decode(&p); err != nil {
			return bad(err)
		}
		in.ws.Update(func(t *state.Tree) { t.DeleteSession(p.SessionID) })
		in.views.Forget(p.SessionID)
		in.comments.Dispose(p.SessionID)

	case event.TypeSessionDiff:
		var p event.SessionDiffPayload
		if err := env.Decode(&p); err != nil {
			return bad(err)
		}
		in.ws.Update(func(t *state.Tree) { t.Diffs[p.SessionID] = p.Diff })

	case event.TypeSessionStatus:
		var p event.SessionStatusPayload
		if err := env.Decode(&p); err != nil {
			return bad(err)
		}
		in.ws.Update(func(t *state.Tree) {
			p.Status.SessionID = p.SessionID
			t.SessionStatus[p.SessionID] = p.Status
		})

	case event.TypeTodoUpdated:
		var p event.TodoPayload
		if err := env.Decode(&p); err != nil {
			return bad(err)
		}
		in.ws.Update(func(t *state.Tree) { t.Todos[p.SessionID] = p.Todos })

	case event.TypeMessageUpdated:
		var p event.MessagePayload
		if err := env.Decode(&p); err != nil || p.Info == nil {
			return bad(err)
		}
		in.ws.Update(func(t *state.Tree) { t.UpsertMessage(p.Info) })

	case event.TypeMessageRemoved:
		var p event.MessageRemovedPayload
		if err := env.Decode(&p); err != nil {
			return bad(err)
		}
		in.ws.Update(func(t *state.Tree) { t.DeleteMessage(p.SessionID, p.MessageID) })

	case event.TypePartUpdated:
		var p event.PartPayload
		if err := env.Decode(&p); err != nil || p.Part == nil {
			return bad(err)
		}
		in.ws.Update(func(t *state.Tree) { t.UpsertPart(p.Part) })

	case event.TypePartRemoved:
		var p event.PartRemovedPayload
		if err := env.Decode(&p); err != nil {
			return bad(err)
		}
		in.ws.Update(func(t *state.Tree) { t.DeletePart(p.MessageID, p.PartID) })

	case event.TypeVCSBranchUpdated:
		var p event.VCSBranchPayload
		if err := env.Decode(&p); err != nil {
			return bad(err)
		}
		// The persisted copy follows via the workspace's persistence
		// bridge, which writes VCS back on every change.
		in.ws.Update(func(t *state.Tree) { t.VCS.Branch = p.Branch })

	case event.TypeLSPUpdated:
		// Carries no payload: pull the fresh status off-loop so a slow
		// endpoint cannot stall event ordering.
		e.refreshLSP(in)

	case event.TypePermissionAsked:
		var p event.PermissionPayload
		if err := env.Decode(&p); err != nil || p.Permission == nil {
			return bad(err)
		}
		in.ws.Update(func(t *state.Tree) { t.UpsertPermission(p.Permission) })

	case event.TypePermissionReplied:
		var p event.PermissionRepliedPayload
		if err := env.Decode(&p); err != nil {
			return bad(err)
		}
		in.ws.Update(func(t *state.Tree) { t.RemovePermission(p.SessionID, p.PermissionID) })

	case event.TypeQuestionAsked:
		var p event.QuestionPayload
		if err := env.Decode(&p); err != nil || p.Question == nil {
			return bad(err)
		}
		in.ws.Update(func(t *state.Tree) { t.UpsertQuestion(p.Question) })

	case event.TypeQuestionReplied, event.TypeQuestionRejected:
		var p event.QuestionRepliedPayload
		if err := env.Decode(&p); err != nil {
			return bad(err)
		}
		in.ws.Update(func(t *state.Tree) { t.RemoveQuestion(p.SessionID, p.QuestionID) })

	case event.TypePtyExited:
		var p event.PtyExitedPayload
		if err := env.Decode(&p); err != nil {
			return bad(err)
		}
		in.terminals.Dispose(p.PtyID)

	case event.TypeFileWatcherUpdated:
		var p event.FileWatcherPayload
		if err := env.Decode(&p); err != nil {
			return bad(err)
		}
		in.files.Invalidate(p.Path)

	default:
		log.Debug().Str("type", env.Type).Msg("unhandled event")
		return false
	}
	return true
}

// refreshLSP pulls the workspace's LSP status in at most one goroutine
// per instance. Events arriving while a pull is in flight collapse into
// a single follow-up pull, so a slow stale response can never land
// after a newer one.
func (e *Engine) refreshLSP(in *Instance) {
	in.lspMu.Lock()
	if in.lspRunning {
		in.lspDirty = true
		in.lspMu.Unlock()
		return
	}
	in.lspRunning = true
	in.lspMu.Unlock()

	go func() {
		for {
			lsp, err := in.client.LSPStatus(e.ctx)
			if err != nil {
				e.metrics.RecordRemoteError("lsp.status")
				in.logger.Warn().Err(err).Msg("lsp refresh failed")
			} else {
				in.ws.Update(func(t *state.Tree) { t.LSP = lsp })
			}

			in.lspMu.Lock()
			if !in.lspDirty {
				in.lspRunning = false
				in.lspMu.Unlock()
				return
			}
			in.lspDirty = false
			in.lspMu.Unlock()
		}
	}()
}

// applySessionUpsert re-applies the retention policy by re-trimming the
// retained set plus the incoming session. The retained set is already
// bounded, so the recompute is cheap, and the root cap holds on the
// event path exactly as it does on a full session-list refetch: an
// archived session is purged, one that no longer qualifies is dropped
// with the usual cascade.
func (e *Engine) applySessionUpsert(in *Instance, s *api.Session) {
	in.ws.Update(func(t *state.Tree) {
		if s.Archived() {
			t.DeleteSession(s.ID)
			return
		}
		candidates := make([]*api.Session, 0, len(t.Sessions)+1)
		for _, k := range t.Sessions {
			if k.ID != s.ID {
				candidates = append(candidates, k)
			}
		}
		e.retainSessions(t, append(candidates, s))
	})
	e.metrics.SetSessionsRetained(in.Directory, float64(sessionCount(in)))
}
