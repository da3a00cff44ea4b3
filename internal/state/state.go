// Package state holds the per-workspace mirror of remote session state:
// a plain mutable tree behind an observable container. All collections
// keyed by id are kept sorted ascending so reconciliation can apply
// deltas with binary-search upserts.
package state

import (
	"sync"

	"github.com/p-blackswan/session-mirror/internal/api"
)

// Status is a workspace's bootstrap progress.
type Status string

const (
	StatusLoading  Status = "loading"
	StatusPartial  Status = "partial"
	StatusComplete Status = "complete"
)

// Tree is the mutable state of one workspace. It must only be accessed
// through Workspace.Update and Workspace.Read.
type Tree struct {
	Status    Status
	ProjectID string
	Project   *api.Project
	// Projects is populated only on the global pseudo-workspace.
	Projects  []api.Project
	Config    *api.RemoteConfig
	Path      *api.Path
	Providers []api.Provider
	Auth      []api.ProviderAuth
	Agents    []api.Agent
	Commands  []api.Command
	VCS       api.VCSInfo
	MCP       []api.MCPStatus
	LSP       []api.LSPStatus

	// Sessions is sorted by ID ascending and already trimmed to the
	// retention set.
	Sessions []*api.Session

	// Per-session collections. Messages and parts are sorted by ID.
	SessionStatus map[string]api.SessionStatus
	Messages      map[string][]*api.Message
	Parts         map[string][]*api.Part // keyed by message ID
	Diffs         map[string][]api.FileDiff
	Todos         map[string][]api.Todo
	Permissions   map[string][]*api.Permission
	Questions     map[string][]*api.Question
}

// NewTree allocates an empty tree in the loading state.
func NewTree() *Tree {
	return &Tree{
		Status:        StatusLoading,
		SessionStatus: make(map[string]api.SessionStatus),
		Messages:      make(map[string][]*api.Message),
		Parts:         make(map[string][]*api.Part),
		Diffs:         make(map[string][]api.FileDiff),
		Todos:         make(map[string][]api.Todo),
		Permissions:   make(map[string][]*api.Permission),
		Questions:     make(map[string][]*api.Question),
	}
}

func sessionID(s *api.Session) string       { return s.ID }
func messageID(m *api.Message) string       { return m.ID }
func partID(p *api.Part) string             { return p.ID }
func permissionID(p *api.Permission) string { return p.ID }
func questionID(q *api.Question) string     { return q.ID }

// UpsertProject inserts or replaces a project by id on the global tree.
func (t *Tree) UpsertProject(p api.Project) {
	t.Projects = UpsertSorted(t.Projects, p, func(p api.Project) string { return p.ID })
}

// UpsertSession inserts or replaces a session by id.
func (t *Tree) UpsertSession(s *api.Session) {
	t.Sessions = UpsertSorted(t.Sessions, s, sessionID)
}

// FindSession returns the session with the given id, if present.
func (t *Tree) FindSession(id string) (*api.Session, bool) {
	return FindSorted(t.Sessions, id, sessionID)
}

// DeleteSession removes a session and cascades: each of its messages'
// parts, then the messages themselves, plus the session's diff, todo,
// permission, question and status slices. Callers invoke this inside a
// single Update so observers see one consistent transition.
func (t *Tree) DeleteSession(id string) bool {
	sessions, ok := DeleteSorted(t.Sessions, id, sessionID)
	t.Sessions = sessions

	for _, m := range t.Messages[id] {
		delete(t.Parts, m.ID)
	}
	delete(t.Messages, id)
	delete(t.Diffs, id)
	delete(t.Todos, id)
	delete(t.Permissions, id)
	delete(t.Questions, id)
	delete(t.SessionStatus, id)
	return ok
}

// UpsertMessage inserts or replaces a message within its session.
func (t *Tree) UpsertMessage(m *api.Message) {
	t.Messages[m.SessionID] = UpsertSorted(t.Messages[m.SessionID], m, messageID)
}

// DeleteMessage removes a message and purges its parts.
func (t *Tree) DeleteMessage(sid, mid string) bool {
	msgs, ok := DeleteSorted(t.Messages[sid], mid, messageID)
	t.Messages[sid] = msgs
	delete(t.Parts, mid)
	return ok
}

// UpsertPart inserts or replaces a part within its message.
func (t *Tree) UpsertPart(p *api.Part) {
	t.Parts[p.MessageID] = UpsertSorted(t.Parts[p.MessageID], p, partID)
}

// DeletePart removes a part from its message.
func (t *Tree) DeletePart(mid, id string) bool {
	parts, ok := DeleteSorted(t.Parts[mid], id, partID)
	t.Parts[mid] = parts
	return ok
}

// UpsertPermission inserts or replaces a pending permission request.
func (t *Tree) UpsertPermission(p *api.Permission) {
	t.Permissions[p.SessionID] = UpsertSorted(t.Permissions[p.SessionID], p, permissionID)
}

// RemovePermission removes a single replied permission by id.
func (t *Tree) RemovePermission(sid, id string) bool {
	perms, ok := DeleteSorted(t.Permissions[sid], id, permissionID)
	if len(perms) == 0 {
		delete(t.Permissions, sid)
	} else {
		t.Permissions[sid] = perms
	}
	return ok
}

// UpsertQuestion inserts or replaces a pending question.
func (t *Tree) UpsertQuestion(q *api.Question) {
	t.Questions[q.SessionID] = UpsertSorted(t.Questions[q.SessionID], q, questionID)
}

// RemoveQuestion removes a single answered or rejected question by id.
func (t *Tree) RemoveQuestion(sid, id string) bool {
	qs, ok := DeleteSorted(t.Questions[sid], id, questionID)
	if len(qs) == 0 {
		delete(t.Questions, sid)
	} else {
		t.Questions[sid] = qs
	}
	return ok
}

// HasPendingPermission reports whether a session has at least one
// unresolved permission request.
func (t *Tree) HasPendingPermission(sid string) bool {
	return len(t.Permissions[sid]) > 0
}

// Workspace wraps a Tree behind get/update/subscribe access. Each
// Update is one transaction: the mutation runs under the write lock and
// subscribers are notified exactly once afterwards, regardless of how
// many fields changed.
type Workspace struct {
	Directory string

	mu      sync.RWMutex
	tree    *Tree
	subMu   sync.Mutex
	subs    map[int]func()
	nextSub int
}

// NewWorkspace allocates a workspace with an empty loading-state tree.
func NewWorkspace(directory string) *Workspace {
	return &Workspace{
		Directory: directory,
		tree:      NewTree(),
		subs:      make(map[int]func()),
	}
}

// Update applies one atomic mutation and then notifies subscribers.
func (w *Workspace) Update(fn func(*Tree)) {
	w.mu.Lock()
	fn(w.tree)
	w.mu.Unlock()
	w.notify()
}

// Read runs fn with read access to the tree. The tree must not be
// mutated or retained past the call.
func (w *Workspace) Read(fn func(*Tree)) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	fn(w.tree)
}

// Status returns the workspace's bootstrap status.
func (w *Workspace) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.tree.Status
}

// Subscribe registers a change listener invoked after every Update.
// The returned function unsubscribes.
func (w *Workspace) Subscribe(fn func()) func() {
	w.subMu.Lock()
	id := w.nextSub
	w.nextSub++
	w.subs[id] = fn
	w.subMu.Unlock()

	return func() {
		w.subMu.Lock()
		delete(w.subs, id)
		w.subMu.Unlock()
	}
}

func (w *Workspace) notify() {
	w.subMu.Lock()
	fns := make([]func(), 0, len(w.subs))
	for _, fn := range w.subs {
		fns = append(fns, fn)
	}
	w.subMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
