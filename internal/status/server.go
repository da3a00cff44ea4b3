// Package status exposes a read-only inspection API over the engine:
// liveness, readiness, and snapshots of the mirrored workspace state.
// It mutates nothing and exists so operators can see what the mirror
// holds without attaching a debugger.
package status

import (
	"encoding/json"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/session-mirror/internal/api"
	"github.com/p-blackswan/session-mirror/internal/engine"
	"github.com/p-blackswan/session-mirror/internal/health"
	"github.com/p-blackswan/session-mirror/internal/pagination"
	"github.com/p-blackswan/session-mirror/internal/state"
)

// ServerConfig holds configuration for the status server.
type ServerConfig struct {
	ListenAddr string
}

// Server is the read-only status Fiber application.
type Server struct {
	app     *fiber.App
	engine  *engine.Engine
	checker *health.Checker
	pager   *pagination.Manager
	logger  zerolog.Logger
	config  ServerConfig
}

// NewServer creates and configures the status server.
func NewServer(cfg ServerConfig, eng *engine.Engine, checker *health.Checker, pager *pagination.Manager, logger zerolog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})

	s := &Server{
		app:     app,
		engine:  eng,
		checker: checker,
		pager:   pager,
		logger:  logger.With().Str("component", "status_server").Logger(),
		config:  cfg,
	}

	app.Use(recover.New())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.app.Get("/healthz", s.liveness)
	s.app.Get("/readyz", s.readiness)
	s.app.Get("/metrics", func(c *fiber.Ctx) error {
		c.Set("Content-Type", "text/plain; charset=utf-8")
		return c.SendString("# Prometheus metrics are served on the metrics listener\n")
	})

	v1 := s.app.Group("/v1")
	v1.Get("/workspaces", s.listWorkspaces)
	v1.Get("/workspaces/:idx/sessions", s.listSessions)
	v1.Get("/workspaces/:idx/sessions/:sid/messages", s.listMessages)
}

func (s *Server) liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) readiness(c *fiber.Ctx) error {
	results := s.checker.RunAll(c.Context())
	for _, st := range results {
		if st == health.StatusDown {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "not ready",
				"checks": results,
			})
		}
	}
	return c.JSON(fiber.Map{"status": "ready", "checks": results})
}

type workspaceSummary struct {
	Index     int    `json:"index"`
	Directory string `json:"directory"`
	Status    string `json:"status"`
	Sessions  int    `json:"sessions"`
	Branch    string `json:"branch,omitempty"`
}

func (s *Server) listWorkspaces(c *fiber.Ctx) error {
	dirs := s.engine.Directories()
	out := make([]workspaceSummary, 0, len(dirs))
	for i, dir := range dirs {
		in, ok := s.engine.Lookup(dir)
		if !ok {
			continue
		}
		sum := workspaceSummary{Index: i, Directory: dir}
		in.State().Read(func(t *state.Tree) {
			sum.Status = string(t.Status)
			sum.Sessions = len(t.Sessions)
			sum.Branch = t.VCS.Branch
		})
		out = append(out, sum)
	}
	return c.JSON(out)
}

// workspaceDir resolves the :idx route param to a tracked directory.
func (s *Server) workspaceDir(c *fiber.Ctx) (string, error) {
	idx, err := strconv.Atoi(c.Params("idx"))
	if err != nil {
		return "", fiber.NewError(fiber.StatusBadRequest, "bad workspace index")
	}
	dirs := s.engine.Directories()
	if idx < 0 || idx >= len(dirs) {
		return "", fiber.NewError(fiber.StatusNotFound, "no such workspace")
	}
	return dirs[idx], nil
}

func (s *Server) listSessions(c *fiber.Ctx) error {
	dir, err := s.workspaceDir(c)
	if err != nil {
		return err
	}
	in, ok := s.engine.Lookup(dir)
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "no such workspace")
	}

	// Snapshot under the read lock; the response must not retain tree
	// internals.
	var sessions []api.Session
	in.State().Read(func(t *state.Tree) {
		sessions = make([]api.Session, 0, len(t.Sessions))
		for _, ses := range t.Sessions {
			sessions = append(sessions, *ses)
		}
	})
	return c.JSON(sessions)
}

type messagePage struct {
	Complete bool                   `json:"complete"`
	Messages []api.MessageWithParts `json:"messages"`
}

// listMessages returns the loaded message window for one session,
// syncing the newest page first if the session was never synced. The
// more query parameter extends the window backwards by that many
// messages before responding.
func (s *Server) listMessages(c *fiber.Ctx) error {
	dir, err := s.workspaceDir(c)
	if err != nil {
		return err
	}
	sid := c.Params("sid")

	if err := s.pager.Sync(c.Context(), dir, sid); err != nil {
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
	if more := c.QueryInt("more"); more > 0 {
		if err := s.pager.LoadMore(c.Context(), dir, sid, more); err != nil {
			return fiber.NewError(fiber.StatusBadGateway, err.Error())
		}
	}

	page := messagePage{Complete: s.pager.Complete(dir, sid)}
	s.engine.State(dir).Read(func(t *state.Tree) {
		msgs := t.Messages[sid]
		page.Messages = make([]api.MessageWithParts, 0, len(msgs))
		for _, m := range msgs {
			mwp := api.MessageWithParts{Info: *m}
			for _, p := range t.Parts[m.ID] {
				mwp.Parts = append(mwp.Parts, *p)
			}
			page.Messages = append(page.Messages, mwp)
		}
	})
	return c.JSON(page)
}

// Start starts the server. Blocks until stopped.
func (s *Server) Start() error {
	addr := s.config.ListenAddr
	if addr == "" {
		addr = ":8091"
	}
	s.logger.Info().Str("addr", addr).Msg("status server starting")
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App returns the underlying Fiber app, useful for testing.
func (s *Server) App() *fiber.App {
	return s.app
}
