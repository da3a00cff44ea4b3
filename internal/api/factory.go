package api

import (
	"sync"

	"github.com/rs/zerolog"
)

// Factory caches one Client per workspace directory. It is owned by the
// engine; clients are created lazily and live for the factory's lifetime.
type Factory struct {
	opts   Options
	logger zerolog.Logger

	mu      sync.Mutex
	clients map[string]*Client
}

// NewFactory creates a client factory.
func NewFactory(opts Options, logger zerolog.Logger) *Factory {
	return &Factory{
		opts:    opts,
		logger:  logger,
		clients: make(map[string]*Client),
	}
}

// Client returns the cached client for a directory, creating it on
// first use. Repeated calls for the same directory return the same client.
func (f *Factory) Client(directory string) *Client {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.clients[directory]; ok {
		return c
	}
	c := NewClient(f.opts, directory, f.logger)
	f.clients[directory] = c
	return c
}

// Global returns a client with no directory scope, used for
// cross-workspace requests (project list, global config).
func (f *Factory) Global() *Client {
	return f.Client("")
}
