// Package api is the HTTP boundary to the remote agent-session server.
// Every call is scoped to one workspace directory via a query parameter;
// the Factory hands out one cached Client per directory.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	serrors "github.com/p-blackswan/session-mirror/internal/errors"
)

// maxErrBody caps how much of an error response body is kept for the message.
const maxErrBody = 4 * 1024

// Options configures a Client.
type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client talks to the remote server for a single workspace directory.
type Client struct {
	base      string
	token     string
	directory string
	http      *http.Client
	logger    zerolog.Logger
}

// NewClient creates a client scoped to one workspace directory.
func NewClient(opts Options, directory string, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		base:      opts.BaseURL,
		token:     opts.Token,
		directory: directory,
		http:      &http.Client{Timeout: timeout},
		logger:    logger.With().Str("component", "api").Str("directory", directory).Logger(),
	}
}

// Directory returns the workspace directory this client is scoped to.
func (c *Client) Directory() string { return c.directory }

// do issues one request and decodes the JSON response into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if query == nil {
		query = url.Values{}
	}
	if c.directory != "" {
		query.Set("directory", c.directory)
	}

	u := c.base + path
	if enc := query.Encode(); enc != "" {
		u += "?" + enc
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("building %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		return serrors.NewAPIError("remote", resp.StatusCode, fmt.Sprintf("%s %s: %s", method, path, string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

// --- Project ---

func (c *Client) ProjectList(ctx context.Context) ([]Project, error) {
	var out []Project
	err := c.do(ctx, http.MethodGet, "/project", nil, nil, &out)
	return out, err
}

func (c *Client) ProjectCurrent(ctx context.Context) (*Project, error) {
	var out Project
	if err := c.do(ctx, http.MethodGet, "/project/current", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ProjectUpdate(ctx context.Context, upd ProjectUpdate) (*Project, error) {
	var out Project
	if err := c.do(ctx, http.MethodPatch, "/project/current", nil, upd, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- Provider / Agent / Config / Path / Command ---

func (c *Client) ProviderList(ctx context.Context) ([]Provider, error) {
	var out []Provider
	err := c.do(ctx, http.MethodGet, "/provider", nil, nil, &out)
	return out, err
}

func (c *Client) ProviderAuth(ctx context.Context) ([]ProviderAuth, error) {
	var out []ProviderAuth
	err := c.do(ctx, http.MethodGet, "/provider/auth", nil, nil, &out)
	return out, err
}

func (c *Client) AgentList(ctx context.Context) ([]Agent, error) {
	var out []Agent
	err := c.do(ctx, http.MethodGet, "/agent", nil, nil, &out)
	return out, err
}

func (c *Client) ConfigGet(ctx context.Context) (*RemoteConfig, error) {
	var out RemoteConfig
	if err := c.do(ctx, http.MethodGet, "/config", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ConfigUpdate(ctx context.Context, cfg RemoteConfig) (*RemoteConfig, error) {
	var out RemoteConfig
	if err := c.do(ctx, http.MethodPatch, "/config", nil, cfg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) PathGet(ctx context.Context) (*Path, error) {
	var out Path
	if err := c.do(ctx, http.MethodGet, "/path", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CommandList(ctx context.Context) ([]Command, error) {
	var out []Command
	err := c.do(ctx, http.MethodGet, "/command", nil, nil, &out)
	return out, err
}

// --- Session ---

func (c *Client) SessionList(ctx context.Context) ([]*Session, error) {
	var out []*Session
	err := c.do(ctx, http.MethodGet, "/session", nil, nil, &out)
	return out, err
}

func (c *Client) SessionGet(ctx context.Context, id string) (*Session, error) {
	var out Session
	if err := c.do(ctx, http.MethodGet, "/session/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SessionUpdate(ctx context.Context, id string, upd SessionUpdate) (*Session, error) {
	var out Session
	if err := c.do(ctx, http.MethodPatch, "/session/"+url.PathEscape(id), nil, upd, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SessionMessages returns up to limit messages ending at the message id
// given in before (exclusive). Empty before means the newest messages.
func (c *Client) SessionMessages(ctx context.Context, id string, limit int, before string) ([]MessageWithParts, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if before != "" {
		q.Set("before", before)
	}
	var out []MessageWithParts
	err := c.do(ctx, http.MethodGet, "/session/"+url.PathEscape(id)+"/message", q, nil, &out)
	return out, err
}

func (c *Client) SessionDiff(ctx context.Context, id string) ([]FileDiff, error) {
	var out []FileDiff
	err := c.do(ctx, http.MethodGet, "/session/"+url.PathEscape(id)+"/diff", nil, nil, &out)
	return out, err
}

func (c *Client) SessionTodo(ctx context.Context, id string) ([]Todo, error) {
	var out []Todo
	err := c.do(ctx, http.MethodGet, "/session/"+url.PathEscape(id)+"/todo", nil, nil, &out)
	return out, err
}

func (c *Client) SessionStatus(ctx context.Context) ([]SessionStatus, error) {
	var out []SessionStatus
	err := c.do(ctx, http.MethodGet, "/session/status", nil, nil, &out)
	return out, err
}

// --- MCP / LSP / VCS ---

func (c *Client) MCPStatus(ctx context.Context) ([]MCPStatus, error) {
	var out []MCPStatus
	err := c.do(ctx, http.MethodGet, "/mcp", nil, nil, &out)
	return out, err
}

func (c *Client) LSPStatus(ctx context.Context) ([]LSPStatus, error) {
	var out []LSPStatus
	err := c.do(ctx, http.MethodGet, "/lsp", nil, nil, &out)
	return out, err
}

func (c *Client) VCSGet(ctx context.Context) (*VCSInfo, error) {
	var out VCSInfo
	if err := c.do(ctx, http.MethodGet, "/vcs", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- Permission / Question ---

func (c *Client) PermissionList(ctx context.Context) ([]*Permission, error) {
	var out []*Permission
	err := c.do(ctx, http.MethodGet, "/permission", nil, nil, &out)
	return out, err
}

func (c *Client) QuestionList(ctx context.Context) ([]*Question, error) {
	var out []*Question
	err := c.do(ctx, http.MethodGet, "/question", nil, nil, &out)
	return out, err
}

// --- Pty ---

func (c *Client) PtyCreate(ctx context.Context, pty Pty) (*Pty, error) {
	var out Pty
	if err := c.do(ctx, http.MethodPost, "/pty", nil, pty, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) PtyUpdate(ctx context.Context, id string, upd PtyUpdate) (*Pty, error) {
	var out Pty
	if err := c.do(ctx, http.MethodPatch, "/pty/"+url.PathEscape(id), nil, upd, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) PtyRemove(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/pty/"+url.PathEscape(id), nil, nil, nil)
}

// --- File ---

func (c *Client) FileRead(ctx context.Context, path string) (*FileContent, error) {
	q := url.Values{}
	q.Set("path", path)
	var out FileContent
	if err := c.do(ctx, http.MethodGet, "/file", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
