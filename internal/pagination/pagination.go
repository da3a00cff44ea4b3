// Package pagination windows session message history: the full history
// lives on the server, the local tree holds a suffix that grows
// backwards on demand. Each (directory, session) pair is synced at most
// once; concurrent callers share the in-flight load.
package pagination

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/session-mirror/internal/api"
	"github.com/p-blackswan/session-mirror/internal/retry"
	"github.com/p-blackswan/session-mirror/internal/state"
)

// DefaultPageSize is how many messages the initial sync pulls.
const DefaultPageSize = 400

// Backend is the slice of the engine the manager needs: per-directory
// state trees and remote clients.
type Backend interface {
	State(directory string) *state.Workspace
	Client(directory string) *api.Client
}

// Options configures New. Backend is required.
type Options struct {
	Backend  Backend
	PageSize int
	Retry    retry.Config
	Logger   zerolog.Logger

	// Notify surfaces load failures to the user. Defaults to logging.
	Notify func(directory, resource string, err error)
}

type flight struct {
	done chan struct{}
	err  error
}

// window tracks what has been loaded for one (directory, session).
type window struct {
	synced   bool
	loading  bool
	complete bool   // no older messages exist on the server
	oldest   string // oldest loaded message id, the cursor for LoadMore
}

// Manager loads message windows into the engine's state trees.
type Manager struct {
	backend  Backend
	pageSize int
	retry    retry.Config
	logger   zerolog.Logger
	notify   func(directory, resource string, err error)

	mu      sync.Mutex
	flights map[string]*flight
	windows map[string]*window
}

// New creates a manager.
func New(opts Options) *Manager {
	m := &Manager{
		backend:  opts.Backend,
		pageSize: opts.PageSize,
		retry:    opts.Retry,
		logger:   opts.Logger.With().Str("component", "pagination").Logger(),
		notify:   opts.Notify,
		flights:  make(map[string]*flight),
		windows:  make(map[string]*window),
	}
	if m.pageSize <= 0 {
		m.pageSize = DefaultPageSize
	}
	if m.retry.MaxAttempts == 0 {
		m.retry = retry.DefaultConfig()
	}
	if m.retry.OnRetry == nil {
		log := m.logger
		m.retry.OnRetry = func(attempt int, err error, _ time.Duration) {
			log.Debug().Err(err).Int("attempt", attempt).Msg("retrying message load")
		}
	}
	if m.notify == nil {
		log := m.logger
		m.notify = func(directory, resource string, err error) {
			log.Error().Err(err).Str("directory", directory).Str("resource", resource).Msg("message load failed")
		}
	}
	return m
}

func key(directory, sessionID string) string {
	return directory + "\n" + sessionID
}

// Sync loads a session's metadata and its newest page of messages. It
// runs at most once per (directory, session): repeat calls return
// immediately, and concurrent calls wait for the one in flight.
func (m *Manager) Sync(ctx context.Context, directory, sessionID string) error {
	k := key(directory, sessionID)

	m.mu.Lock()
	if w := m.windows[k]; w != nil && w.synced {
		m.mu.Unlock()
		return nil
	}
	if fl, ok := m.flights[k]; ok {
		m.mu.Unlock()
		select {
		case <-fl.done:
			return fl.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	fl := &flight{done: make(chan struct{})}
	m.flights[k] = fl
	m.mu.Unlock()

	err := m.sync(ctx, directory, sessionID)

	m.mu.Lock()
	delete(m.flights, k)
	m.mu.Unlock()
	fl.err = err
	close(fl.done)
	return err
}

func (m *Manager) sync(ctx context.Context, directory, sessionID string) error {
	client := m.backend.Client(directory)

	var session *api.Session
	err := retry.Do(ctx, m.retry, func(ctx context.Context) (err error) {
		session, err = client.SessionGet(ctx, sessionID)
		return
	})
	if err != nil {
		m.notify(directory, "session.get", err)
		return err
	}

	var msgs []api.MessageWithParts
	err = retry.Do(ctx, m.retry, func(ctx context.Context) (err error) {
		msgs, err = client.SessionMessages(ctx, sessionID, m.pageSize, "")
		return
	})
	if err != nil {
		m.notify(directory, "session.messages", err)
		return err
	}

	m.apply(directory, session, msgs)

	m.mu.Lock()
	m.windows[key(directory, sessionID)] = &window{
		synced: true,
		// Fewer messages than requested proves we hit the beginning.
		// An exactly-full page proves nothing; one more round trip is
		// needed to find out, so the window stays open.
		complete: len(msgs) < m.pageSize,
		oldest:   oldestID(msgs),
	}
	m.mu.Unlock()
	return nil
}

// LoadMore extends the window backwards by up to count messages (the
// configured page size if count <= 0). No-op while a load is already
// running or once the beginning of history has been reached. Syncs
// first if the session was never synced.
func (m *Manager) LoadMore(ctx context.Context, directory, sessionID string, count int) error {
	k := key(directory, sessionID)

	m.mu.Lock()
	w := m.windows[k]
	m.mu.Unlock()
	if w == nil || !w.synced {
		return m.Sync(ctx, directory, sessionID)
	}
	if count <= 0 {
		count = m.pageSize
	}

	m.mu.Lock()
	if w.loading || w.complete {
		m.mu.Unlock()
		return nil
	}
	w.loading = true
	before := w.oldest
	m.mu.Unlock()

	client := m.backend.Client(directory)
	var msgs []api.MessageWithParts
	err := retry.Do(ctx, m.retry, func(ctx context.Context) (err error) {
		msgs, err = client.SessionMessages(ctx, sessionID, count, before)
		return
	})

	m.mu.Lock()
	w.loading = false
	if err != nil {
		m.mu.Unlock()
		m.notify(directory, "session.messages", err)
		return err
	}
	w.complete = len(msgs) < count
	if id := oldestID(msgs); id != "" && (w.oldest == "" || id < w.oldest) {
		w.oldest = id
	}
	m.mu.Unlock()

	m.apply(directory, nil, msgs)
	return nil
}

// Complete reports whether the full history for a session is loaded.
func (m *Manager) Complete(directory, sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.windows[key(directory, sessionID)]
	return w != nil && w.complete
}

// Forget drops the window so the next Sync reloads from scratch. Used
// when a session is deleted.
func (m *Manager) Forget(directory, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.windows, key(directory, sessionID))
}

// AddOptimistic inserts a locally-authored message and text part into
// the tree before the server echoes them back. The ids are ULIDs, so
// they sort after everything already loaded and the authoritative echo
// upserts in place instead of duplicating.
func (m *Manager) AddOptimistic(directory, sessionID, role, text string) *api.Message {
	now := time.Now()
	msg := &api.Message{
		ID:        "msg_" + ulid.Make().String(),
		SessionID: sessionID,
		Role:      role,
		Time:      api.MessageTime{Created: now.UnixMilli()},
	}
	part := &api.Part{
		ID:        "prt_" + ulid.Make().String(),
		MessageID: msg.ID,
		SessionID: sessionID,
		Type:      "text",
		Text:      text,
	}
	m.backend.State(directory).Update(func(t *state.Tree) {
		t.UpsertMessage(msg)
		t.UpsertPart(part)
	})
	return msg
}

// apply upserts a page of messages (and optionally the session itself)
// in one transaction.
func (m *Manager) apply(directory string, session *api.Session, msgs []api.MessageWithParts) {
	m.backend.State(directory).Update(func(t *state.Tree) {
		if session != nil {
			t.UpsertSession(session)
		}
		for i := range msgs {
			info := msgs[i].Info
			t.UpsertMessage(&info)
			for j := range msgs[i].Parts {
				part := msgs[i].Parts[j]
				t.UpsertPart(&part)
			}
		}
	})
}

func oldestID(msgs []api.MessageWithParts) string {
	var oldest string
	for i := range msgs {
		if oldest == "" || msgs[i].Info.ID < oldest {
			oldest = msgs[i].Info.ID
		}
	}
	return oldest
}
