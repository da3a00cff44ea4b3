// Package lru implements a generic, thread-safe bounded cache.
//
// Entries are evicted in least-recently-used order whenever the cache
// exceeds its entry budget or, if configured, its cumulative weight
// budget. Weight is an arbitrary secondary cost, typically an estimated
// byte size; entries default to weight 1.
//
// Time complexity: O(1) for Get, Put, Delete, Len (amortized over
// evictions). Implementation uses a hash map for key lookup combined
// with a doubly linked list for eviction ordering.
package lru

import "sync"

// node is a doubly linked list node holding a key-value pair.
type node[K comparable, V any] struct {
	key    K
	val    V
	weight int64
	prev   *node[K, V]
	next   *node[K, V]
}

// Cache is a generic, thread-safe LRU cache with an entry budget and an
// optional weight budget. K must be comparable, V can be any type.
type Cache[K comparable, V any] struct {
	mu         sync.Mutex
	maxEntries int
	maxWeight  int64 // 0 means unweighted
	weight     int64
	onEvict    func(K, V)
	items      map[K]*node[K, V]
	head       *node[K, V] // most recently used (sentinel)
	tail       *node[K, V] // least recently used (sentinel)
	protected  *K          // pinned key, never evicted
}

// Option configures a Cache.
type Option[K comparable, V any] func(*Cache[K, V])

// WithMaxWeight sets a cumulative weight budget. Eviction runs while
// either the entry budget or the weight budget is exceeded.
func WithMaxWeight[K comparable, V any](w int64) Option[K, V] {
	return func(c *Cache[K, V]) { c.maxWeight = w }
}

// WithDisposal registers a callback invoked for each entry as it is
// evicted or cleared, before removal. The callback runs with the cache
// lock held and must not call back into the cache.
func WithDisposal[K comparable, V any](fn func(K, V)) Option[K, V] {
	return func(c *Cache[K, V]) { c.onEvict = fn }
}

// New creates a cache bounded to maxEntries. Panics if maxEntries < 1.
func New[K comparable, V any](maxEntries int, opts ...Option[K, V]) *Cache[K, V] {
	if maxEntries < 1 {
		panic("lru: maxEntries must be >= 1")
	}

	head := &node[K, V]{}
	tail := &node[K, V]{}
	head.next = tail
	tail.prev = head

	c := &Cache[K, V]{
		maxEntries: maxEntries,
		items:      make(map[K]*node[K, V], maxEntries),
		head:       head,
		tail:       tail,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get retrieves a value by key and marks it most recently used.
// Returns the zero value and false if not found.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}

	c.moveToFront(n)
	return n.val, true
}

// Peek retrieves a value without updating access order.
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	return n.val, true
}

// Touch marks a key most recently used. Returns true if the key existed.
func (c *Cache[K, V]) Touch(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.items[key]
	if !ok {
		return false
	}
	c.moveToFront(n)
	return true
}

// Put inserts or updates a key-value pair with weight 1.
func (c *Cache[K, V]) Put(key K, val V) {
	c.PutWeighted(key, val, 1)
}

// PutWeighted inserts or updates a key-value pair with an explicit
// weight, then evicts least-recently-used entries until both budgets
// are satisfied. The key being inserted is never evicted by its own
// insertion.
func (c *Cache[K, V]) PutWeighted(key K, val V, weight int64) {
	if weight < 0 {
		weight = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.items[key]; ok {
		c.weight += weight - n.weight
		n.val = val
		n.weight = weight
		c.moveToFront(n)
		c.evictLocked(n)
		return
	}

	n := &node[K, V]{key: key, val: val, weight: weight}
	c.items[key] = n
	c.weight += weight
	c.pushFront(n)
	c.evictLocked(n)
}

// Protect pins a key so it is never evicted, replacing any previously
// protected key.
func (c *Cache[K, V]) Protect(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key
	c.protected = &k
}

// Unprotect clears the pinned key.
func (c *Cache[K, V]) Unprotect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.protected = nil
}

// Delete removes a key without running the disposal callback.
// Returns true if the key existed.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeLocked(n)
	return true
}

// Dispose removes a key, running the disposal callback first.
// Returns true if the key existed.
func (c *Cache[K, V]) Dispose(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.items[key]
	if !ok {
		return false
	}
	if c.onEvict != nil {
		c.onEvict(n.key, n.val)
	}
	c.removeLocked(n)
	return true
}

// Len returns the current number of entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Weight returns the current cumulative weight.
func (c *Cache[K, V]) Weight() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.weight
}

// Keys returns all keys in order from most to least recently used.
func (c *Cache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]K, 0, len(c.items))
	for cur := c.head.next; cur != c.tail; cur = cur.next {
		keys = append(keys, cur.key)
	}
	return keys
}

// Clear removes all entries, running the disposal callback for each.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.onEvict != nil {
		for cur := c.head.next; cur != c.tail; cur = cur.next {
			c.onEvict(cur.key, cur.val)
		}
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	c.items = make(map[K]*node[K, V], c.maxEntries)
	c.weight = 0
}

// evictLocked removes LRU entries while either budget is exceeded,
// skipping the just-touched node and the protected key. Caller must
// hold the lock.
func (c *Cache[K, V]) evictLocked(justTouched *node[K, V]) {
	for c.overBudgetLocked() {
		victim := c.tail.prev
		for victim != c.head && (victim == justTouched || c.isProtected(victim.key)) {
			victim = victim.prev
		}
		if victim == c.head {
			return // nothing evictable
		}
		if c.onEvict != nil {
			c.onEvict(victim.key, victim.val)
		}
		c.removeLocked(victim)
	}
}

func (c *Cache[K, V]) overBudgetLocked() bool {
	if len(c.items) > c.maxEntries {
		return true
	}
	return c.maxWeight > 0 && c.weight > c.maxWeight
}

func (c *Cache[K, V]) isProtected(key K) bool {
	return c.protected != nil && *c.protected == key
}

// --- internal linked list operations (caller must hold lock) ---

func (c *Cache[K, V]) removeLocked(n *node[K, V]) {
	c.unlink(n)
	delete(c.items, n.key)
	c.weight -= n.weight
}

func (c *Cache[K, V]) unlink(n *node[K, V]) {
	n.prev.next = n.next
	n.next.prev = n.prev
	n.prev = nil
	n.next = nil
}

func (c *Cache[K, V]) pushFront(n *node[K, V]) {
	n.next = c.head.next
	n.prev = c.head
	c.head.next.prev = n
	c.head.next = n
}

func (c *Cache[K, V]) moveToFront(n *node[K, V]) {
	c.unlink(n)
	c.pushFront(n)
}
