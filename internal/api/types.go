package api

// Types mirroring the remote server's wire shapes. Timestamps are unix
// milliseconds throughout. Identifiers are lexicographically sortable
// (time-ordered ULIDs), which the state layer relies on for
// binary-search upserts.

// Project is a remote project descriptor.
type Project struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Directory string `json:"directory"`
	Icon      string `json:"icon,omitempty"`
	UpdatedAt int64  `json:"updatedAt"`
}

// ProjectUpdate is the mutable subset of Project.
type ProjectUpdate struct {
	Name *string `json:"name,omitempty"`
	Icon *string `json:"icon,omitempty"`
}

// Provider is an LLM provider the server can route sessions through.
type Provider struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Models []string `json:"models,omitempty"`
}

// ProviderAuth reports which providers hold valid credentials.
type ProviderAuth struct {
	ProviderID string `json:"providerId"`
	Method     string `json:"method"`
	Valid      bool   `json:"valid"`
}

// Agent is a configured agent profile.
type Agent struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Mode        string `json:"mode,omitempty"`
}

// RemoteConfig is the server-side configuration blob.
type RemoteConfig struct {
	Model    string            `json:"model,omitempty"`
	Theme    string            `json:"theme,omitempty"`
	Keybinds map[string]string `json:"keybinds,omitempty"`
	Extra    map[string]any    `json:"extra,omitempty"`
}

// Path reports the server's resolved directories for a workspace.
type Path struct {
	Root      string `json:"root"`
	Data      string `json:"data"`
	Worktree  string `json:"worktree,omitempty"`
	Directory string `json:"directory"`
}

// Command is a user-invokable server command.
type Command struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Template    string `json:"template,omitempty"`
}

// SessionTime groups a session's lifecycle timestamps.
type SessionTime struct {
	Created  int64 `json:"created"`
	Updated  int64 `json:"updated"`
	Archived int64 `json:"archived,omitempty"`
}

// Session is one conversation with the agent. Sessions form a forest
// via ParentID.
type Session struct {
	ID        string      `json:"id"`
	ParentID  string      `json:"parentID,omitempty"`
	Title     string      `json:"title,omitempty"`
	Directory string      `json:"directory,omitempty"`
	Version   string      `json:"version,omitempty"`
	Time      SessionTime `json:"time"`
}

// Archived reports whether the session has been archived.
func (s *Session) Archived() bool { return s.Time.Archived > 0 }

// SessionUpdate is the mutable subset of Session.
type SessionUpdate struct {
	Title    *string `json:"title,omitempty"`
	Archived *int64  `json:"archived,omitempty"`
}

// SessionStatus is the server's live activity state for a session.
type SessionStatus struct {
	SessionID string `json:"sessionID"`
	Type      string `json:"type"` // "idle", "busy", "waiting"
	Detail    string `json:"detail,omitempty"`
}

// MessageTime groups a message's timestamps.
type MessageTime struct {
	Created   int64 `json:"created"`
	Completed int64 `json:"completed,omitempty"`
}

// Message is one turn within a session.
type Message struct {
	ID        string      `json:"id"`
	SessionID string      `json:"sessionID"`
	Role      string      `json:"role"` // "user" or "assistant"
	Time      MessageTime `json:"time"`
}

// Part is an atomic content unit owned by exactly one message.
type Part struct {
	ID        string `json:"id"`
	MessageID string `json:"messageID"`
	SessionID string `json:"sessionID"`
	Type      string `json:"type"` // "text", "tool", "file", ...
	Text      string `json:"text,omitempty"`
	Tool      string `json:"tool,omitempty"`
}

// MessageWithParts is the wire shape of a session message listing.
type MessageWithParts struct {
	Info  Message `json:"info"`
	Parts []Part  `json:"parts"`
}

// FileDiff is one changed file in a session's diff.
type FileDiff struct {
	Path      string `json:"path"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Patch     string `json:"patch,omitempty"`
}

// Todo is one entry in a session's todo list.
type Todo struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Status  string `json:"status"` // "pending", "in_progress", "completed"
}

// Permission is a pending approval the user must resolve.
type Permission struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionID"`
	Type      string         `json:"type"`
	Title     string         `json:"title,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt int64          `json:"createdAt"`
}

// Question is a pending free-form question from the agent.
type Question struct {
	ID        string   `json:"id"`
	SessionID string   `json:"sessionID"`
	Text      string   `json:"text"`
	Options   []string `json:"options,omitempty"`
	CreatedAt int64    `json:"createdAt"`
}

// VCSInfo is the workspace's version-control snapshot.
type VCSInfo struct {
	Branch string `json:"branch"`
	Dirty  bool   `json:"dirty,omitempty"`
}

// MCPStatus reports one MCP server's health.
type MCPStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "connected", "failed", "pending"
	Error  string `json:"error,omitempty"`
}

// LSPStatus reports one language server's health.
type LSPStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Pty is a server-side pseudo-terminal attached to a session.
type Pty struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID,omitempty"`
	Command   string `json:"command,omitempty"`
	Rows      int    `json:"rows,omitempty"`
	Cols      int    `json:"cols,omitempty"`
}

// PtyUpdate is the mutable subset of Pty.
type PtyUpdate struct {
	Rows *int `json:"rows,omitempty"`
	Cols *int `json:"cols,omitempty"`
}

// FileContent is the payload returned when reading a workspace file.
type FileContent struct {
	Path    string `json:"path"`
	Name    string `json:"name"`
	Content string `json:"content"`
}
