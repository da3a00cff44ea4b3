package lru

import (
	"fmt"
	"sync"
	"testing"
)

// --- Functional Tests ---

func TestBasicGetPut(t *testing.T) {
	c := New[string, int](2)

	c.Put("a", 1)
	c.Put("b", 2)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("expected a=1, got %v %v", v, ok)
	}
	if v, ok := c.Get("b"); !ok || v != 2 {
		t.Fatalf("expected b=2, got %v %v", v, ok)
	}
}

func TestEviction(t *testing.T) {
	c := New[string, int](2)

	c.Put("a", 1)
	c.Put("b", 2)

	// Access "a" to make it MRU, leaving "b" as LRU.
	c.Get("a")

	// Inserting "c" should evict "b".
	c.Put("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("expected 'b' to be evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("expected a=1 after eviction, got %v %v", v, ok)
	}
	if v, ok := c.Get("c"); !ok || v != 3 {
		t.Fatalf("expected c=3, got %v %v", v, ok)
	}
}

func TestDisposalCallback(t *testing.T) {
	var disposed []string
	c := New(2, WithDisposal[string, int](func(k string, v int) {
		disposed = append(disposed, fmt.Sprintf("%s=%d", k, v))
	}))

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3) // evicts "a"

	if len(disposed) != 1 || disposed[0] != "a=1" {
		t.Fatalf("expected disposal of a=1, got %v", disposed)
	}

	c.Clear()
	if len(disposed) != 3 {
		t.Fatalf("expected 3 disposals after clear, got %v", disposed)
	}
}

func TestDeleteSkipsDisposal(t *testing.T) {
	disposals := 0
	c := New(2, WithDisposal[string, int](func(string, int) { disposals++ }))

	c.Put("a", 1)
	if !c.Delete("a") {
		t.Fatal("expected delete to report existing key")
	}
	if disposals != 0 {
		t.Fatalf("Delete must not run disposal, got %d calls", disposals)
	}

	c.Put("b", 2)
	if !c.Dispose("b") {
		t.Fatal("expected dispose to report existing key")
	}
	if disposals != 1 {
		t.Fatalf("Dispose must run disposal once, got %d calls", disposals)
	}
}

func TestProtectedKeySurvivesEviction(t *testing.T) {
	c := New[string, int](2)

	c.Put("active", 1)
	c.Protect("active")

	c.Put("b", 2)
	c.Put("c", 3)
	c.Put("d", 4)

	if _, ok := c.Peek("active"); !ok {
		t.Fatal("protected key must never be evicted")
	}
	if c.Len() > 3 {
		t.Fatalf("cache exceeded budget beyond protected overflow: len=%d", c.Len())
	}

	c.Unprotect()
	c.Put("e", 5)
	c.Put("f", 6)
	if _, ok := c.Peek("active"); ok {
		t.Fatal("unprotected key should age out")
	}
}

func TestWeightBudget(t *testing.T) {
	c := New(40, WithMaxWeight[string, string](100))

	c.PutWeighted("a", "x", 60)
	c.PutWeighted("b", "y", 30)
	if c.Len() != 2 {
		t.Fatalf("expected both entries within budget, len=%d", c.Len())
	}

	// 60+30+50 > 100: evicts "a" (LRU), then fits.
	c.PutWeighted("c", "z", 50)
	if _, ok := c.Peek("a"); ok {
		t.Fatal("expected 'a' evicted by weight budget")
	}
	if c.Weight() != 80 {
		t.Fatalf("expected weight 80, got %d", c.Weight())
	}
}

func TestWeightUpdateExistingKey(t *testing.T) {
	c := New(40, WithMaxWeight[string, string](100))

	c.PutWeighted("a", "x", 10)
	c.PutWeighted("a", "xx", 90)
	if c.Weight() != 90 {
		t.Fatalf("expected weight 90 after re-put, got %d", c.Weight())
	}
	if c.Len() != 1 {
		t.Fatalf("re-put must not duplicate, len=%d", c.Len())
	}
}

func TestOversizedEntryDoesNotEvictItself(t *testing.T) {
	c := New(40, WithMaxWeight[string, string](100))

	c.PutWeighted("huge", "payload", 500)
	if _, ok := c.Peek("huge"); !ok {
		t.Fatal("a single over-budget entry must survive its own insertion")
	}

	// Next insertion evicts it.
	c.PutWeighted("small", "s", 1)
	if _, ok := c.Peek("huge"); ok {
		t.Fatal("over-budget entry should be evicted by the next insertion")
	}
}

func TestPeekAndTouchOrdering(t *testing.T) {
	c := New[string, int](3)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)

	c.Peek("a")  // must not touch
	c.Touch("b") // b becomes MRU

	keys := c.Keys()
	if len(keys) != 3 || keys[0] != "b" || keys[2] != "a" {
		t.Fatalf("unexpected MRU order: %v", keys)
	}
}

func TestKeysOrder(t *testing.T) {
	c := New[int, int](5)
	for i := 1; i <= 5; i++ {
		c.Put(i, i)
	}
	c.Get(1)

	keys := c.Keys()
	if keys[0] != 1 || keys[1] != 5 {
		t.Fatalf("unexpected key order: %v", keys)
	}
}

// --- Concurrency ---

func TestConcurrentAccess(t *testing.T) {
	c := New[int, int](64)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				k := (g*1000 + i) % 100
				c.Put(k, i)
				c.Get(k)
				if i%10 == 0 {
					c.Delete(k)
				}
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 64 {
		t.Fatalf("cache exceeded entry budget: %d", c.Len())
	}
}
