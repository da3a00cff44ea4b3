package event

import (
	"encoding/json"

	"github.com/p-blackswan/session-mirror/internal/api"
)

// Event types emitted by the remote server, plus the synthetic
// TypeServerConnected the stream injects after every successful
// (re)connect so the engine can schedule a root refresh.
const (
	TypeProjectUpdated   = "project.updated"
	TypeGlobalDisposed   = "global.disposed"
	TypeInstanceDisposed = "server.instance.disposed"
	TypeServerConnected  = "server.connected"

	TypeSessionCreated = "session.created"
	TypeSessionUpdated = "session.updated"
	TypeSessionDeleted = "session.deleted"
	TypeSessionDiff    = "session.diff"
	TypeSessionStatus  = "session.status"
	TypeTodoUpdated    = "todo.updated"

	TypeMessageUpdated = "message.updated"
	TypeMessageRemoved = "message.removed"
	TypePartUpdated    = "message.part.updated"
	TypePartRemoved    = "message.part.removed"

	TypeVCSBranchUpdated = "vcs.branch.updated"

	TypePermissionAsked   = "permission.asked"
	TypePermissionReplied = "permission.replied"
	TypeQuestionAsked     = "question.asked"
	TypeQuestionReplied   = "question.replied"
	TypeQuestionRejected  = "question.rejected"

	TypeLSPUpdated         = "lsp.updated"
	TypePtyExited          = "pty.exited"
	TypeFileWatcherUpdated = "file.watcher.updated"
)

// Envelope is one event as received from the stream. Directory is empty
// for events addressed to the global pseudo-workspace.
type Envelope struct {
	Directory string          `json:"directory,omitempty"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"properties,omitempty"`
}

// Global reports whether the event is addressed to the global
// pseudo-workspace rather than a specific directory.
func (e Envelope) Global() bool { return e.Directory == "" }

// Decode unmarshals the event payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}

// --- Typed payloads ---

// SessionPayload carries session.created / session.updated.
type SessionPayload struct {
	Info *api.Session `json:"info"`
}

// SessionDeletedPayload carries session.deleted.
type SessionDeletedPayload struct {
	SessionID string `json:"sessionID"`
}

// SessionDiffPayload carries session.diff.
type SessionDiffPayload struct {
	SessionID string         `json:"sessionID"`
	Diff      []api.FileDiff `json:"diff"`
}

// SessionStatusPayload carries session.status.
type SessionStatusPayload struct {
	SessionID string            `json:"sessionID"`
	Status    api.SessionStatus `json:"status"`
}

// TodoPayload carries todo.updated.
type TodoPayload struct {
	SessionID string     `json:"sessionID"`
	Todos     []api.Todo `json:"todos"`
}

// MessagePayload carries message.updated.
type MessagePayload struct {
	Info *api.Message `json:"info"`
}

// MessageRemovedPayload carries message.removed.
type MessageRemovedPayload struct {
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
}

// PartPayload carries message.part.updated.
type PartPayload struct {
	Part *api.Part `json:"part"`
}

// PartRemovedPayload carries message.part.removed.
type PartRemovedPayload struct {
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
	PartID    string `json:"partID"`
}

// VCSBranchPayload carries vcs.branch.updated.
type VCSBranchPayload struct {
	Branch string `json:"branch"`
}

// PermissionPayload carries permission.asked.
type PermissionPayload struct {
	Permission *api.Permission `json:"permission"`
}

// PermissionRepliedPayload carries permission.replied.
type PermissionRepliedPayload struct {
	SessionID    string `json:"sessionID"`
	PermissionID string `json:"permissionID"`
}

// QuestionPayload carries question.asked.
type QuestionPayload struct {
	Question *api.Question `json:"question"`
}

// QuestionRepliedPayload carries question.replied / question.rejected.
type QuestionRepliedPayload struct {
	SessionID  string `json:"sessionID"`
	QuestionID string `json:"questionID"`
}

// ProjectPayload carries project.updated.
type ProjectPayload struct {
	Project *api.Project `json:"project"`
}

// PtyExitedPayload carries pty.exited.
type PtyExitedPayload struct {
	PtyID string `json:"ptyID"`
}

// FileWatcherPayload carries file.watcher.updated.
type FileWatcherPayload struct {
	Path  string `json:"path"`
	Event string `json:"event,omitempty"` // "change", "delete", ...
}
