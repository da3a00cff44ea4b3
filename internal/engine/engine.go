// Package engine is the core of the mirror: it owns one state tree per
// workspace directory, bulk-loads them through the bootstrap scheduler,
// and keeps them current by applying the remote event stream in arrival
// order. Consumers read trees through the instances; nothing here
// renders anything.
package engine

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/session-mirror/internal/api"
	"github.com/p-blackswan/session-mirror/internal/config"
	"github.com/p-blackswan/session-mirror/internal/event"
	"github.com/p-blackswan/session-mirror/internal/metrics"
	"github.com/p-blackswan/session-mirror/internal/persist"
	"github.com/p-blackswan/session-mirror/internal/state"
)

// Level classifies a notification.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notification is a user-facing failure or status report surfaced by
// the engine, typically a blocking bootstrap failure.
type Notification struct {
	Level     Level
	Directory string // empty for global
	Resource  string // remote operation that failed, e.g. "config.get"
	Message   string
	Err       error
}

// Notifier receives engine notifications.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// Engine owns the instance registry, the bootstrap scheduler, and the
// event dispatch loop.
type Engine struct {
	cfg      *config.Config
	factory  *api.Factory
	store    *persist.Store
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	notifier Notifier

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	instances map[string]*Instance

	global *state.Workspace
	sched  *Scheduler
}

// Options configures New. Config, Factory, Store, and Metrics are
// required; Notifier defaults to logging.
type Options struct {
	Config   *config.Config
	Factory  *api.Factory
	Store    *persist.Store
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
	Notifier Notifier
}

// New creates an engine. No remote calls happen until Run or the first
// Child.
func New(opts Options) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:       opts.Config,
		factory:   opts.Factory,
		store:     opts.Store,
		metrics:   opts.Metrics,
		logger:    opts.Logger.With().Str("component", "engine").Logger(),
		notifier:  opts.Notifier,
		ctx:       ctx,
		cancel:    cancel,
		instances: make(map[string]*Instance),
		global:    state.NewWorkspace(""),
	}
	if e.notifier == nil {
		log := e.logger
		e.notifier = NotifierFunc(func(n Notification) {
			ev := log.Info()
			if n.Level == LevelError {
				ev = log.Error()
			}
			ev.Err(n.Err).
				Str("directory", n.Directory).
				Str("resource", n.Resource).
				Msg("engine notification")
		})
	}
	e.sched = newScheduler(e, opts.Config.BootstrapConcurrency)
	return e
}

// Run schedules a root refresh and consumes the event channel until it
// closes or ctx is cancelled. It must be called at most once; events
// are applied by this one goroutine, which is what preserves their
// arrival order.
func (e *Engine) Run(ctx context.Context, events <-chan event.Envelope) error {
	e.sched.RequestRoot()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.ctx.Done():
			return nil
		case env, ok := <-events:
			if !ok {
				return nil
			}
			e.Dispatch(env)
		}
	}
}

// Close cancels in-flight work and disposes every instance. In-flight
// bootstrap results are discarded; persistence flushes (view states,
// side caches) still run.
func (e *Engine) Close() {
	e.cancel()

	e.mu.Lock()
	instances := e.instances
	e.instances = make(map[string]*Instance)
	e.mu.Unlock()

	for _, in := range instances {
		in.dispose()
	}
	e.logger.Info().Int("workspaces", len(instances)).Msg("engine closed")
}

// State returns the observable tree for a directory, creating the
// instance without bootstrapping if needed.
func (e *Engine) State(directory string) *state.Workspace {
	return e.ChildNoBootstrap(directory).ws
}

// Client returns the directory-scoped remote client.
func (e *Engine) Client(directory string) *api.Client {
	return e.factory.Client(directory)
}

// Scheduler exposes the bootstrap scheduler for callers that need to
// request refreshes directly.
func (e *Engine) Scheduler() *Scheduler { return e.sched }

// UpdateRemoteConfig writes the global remote configuration. The
// scheduler is paused for the duration of the write so no bootstrap
// reads half-applied config; resuming re-queues a full root refresh.
func (e *Engine) UpdateRemoteConfig(ctx context.Context, cfg api.RemoteConfig) error {
	e.sched.Pause()
	defer e.sched.Resume()

	updated, err := e.factory.Global().ConfigUpdate(ctx, cfg)
	if err != nil {
		e.metrics.RecordRemoteError("config.update")
		e.notify(Notification{Level: LevelError, Resource: "config.update", Err: err})
		return err
	}
	e.global.Update(func(t *state.Tree) { t.Config = updated })
	return nil
}

func (e *Engine) notify(n Notification) {
	e.notifier.Notify(n)
}
