package engine

import "sync"

// Handle is an explicit lifetime object for anything that needs
// teardown: a subscription, a per-session sub-store, a timer. Dispose
// is idempotent.
type Handle struct {
	once sync.Once
	fn   func()
}

// NewHandle wraps a cleanup function in a Handle.
func NewHandle(fn func()) *Handle {
	return &Handle{fn: fn}
}

// Dispose runs the cleanup exactly once.
func (h *Handle) Dispose() {
	h.once.Do(func() {
		if h.fn != nil {
			h.fn()
		}
	})
}

// scopeRegistry collects handles tied to an owning lifetime (an
// instance or the whole engine) so teardown happens in one place.
type scopeRegistry struct {
	mu      sync.Mutex
	handles []*Handle
}

func newScopeRegistry() *scopeRegistry {
	return &scopeRegistry{}
}

// Add registers a handle for disposal with the owner.
func (r *scopeRegistry) Add(h *Handle) {
	r.mu.Lock()
	r.handles = append(r.handles, h)
	r.mu.Unlock()
}

// DisposeAll disposes every registered handle in reverse registration
// order and clears the registry.
func (r *scopeRegistry) DisposeAll() {
	r.mu.Lock()
	handles := r.handles
	r.handles = nil
	r.mu.Unlock()

	for i := len(handles) - 1; i >= 0; i-- {
		handles[i].Dispose()
	}
}
