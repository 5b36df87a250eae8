package cache

import (
	"fmt"
	"sync"
	"testing"
)

func TestGetAddRemove(t *testing.T) {
	c, err := New[string, int](4)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, ok := c.Get("a"); ok {
		t.Error("Get on empty cache reported a hit")
	}

	c.Add("a", 1)
	v, ok := c.Get("a")
	if !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v; want 1, true", v, ok)
	}

	c.Remove("a")
	if _, ok := c.Get("a"); ok {
		t.Error("Get after Remove reported a hit")
	}
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c, err := New[int, string](2)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	c.Add(1, "one")
	c.Add(2, "two")
	c.Get(1) // touch so 2 is now least recent
	c.Add(3, "three")

	if _, ok := c.Get(2); ok {
		t.Error("least recently used entry survived eviction")
	}
	if _, ok := c.Get(1); !ok {
		t.Error("recently used entry was evicted")
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
}

func TestRejectsNonPositiveCapacity(t *testing.T) {
	if _, err := New[string, string](0); err == nil {
		t.Error("New(0) succeeded, want error")
	}
	if _, err := New[string, string](-1); err == nil {
		t.Error("New(-1) succeeded, want error")
	}
}

func TestStatsTracking(t *testing.T) {
	c, err := New[string, bool](8)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	c.Add("x", true)
	c.Get("x")
	c.Get("x")
	c.Get("missing")

	s := c.Stats()
	if s.Hits != 2 || s.Misses != 1 {
		t.Errorf("Stats = %d hits / %d misses, want 2 / 1", s.Hits, s.Misses)
	}
	if s.Size != 1 || s.Capacity != 8 {
		t.Errorf("Stats = size %d cap %d, want 1 / 8", s.Size, s.Capacity)
	}
	if got := s.HitRate(); got < 0.66 || got > 0.67 {
		t.Errorf("HitRate = %f, want ~0.667", got)
	}
}

func TestPeekSkipsCounters(t *testing.T) {
	c, err := New[string, int](4)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	c.Add("a", 1)
	if v, ok := c.Peek("a"); !ok || v != 1 {
		t.Errorf("Peek(a) = %d, %v; want 1, true", v, ok)
	}
	if _, ok := c.Peek("missing"); ok {
		t.Error("Peek reported a hit for an absent key")
	}

	s := c.Stats()
	if s.Hits != 0 || s.Misses != 0 {
		t.Errorf("Stats after Peek = %d hits / %d misses, want 0 / 0", s.Hits, s.Misses)
	}
}

func TestHitRateEmptyCache(t *testing.T) {
	var s Stats
	if got := s.HitRate(); got != 0 {
		t.Errorf("HitRate on zero stats = %f, want 0", got)
	}
}

func TestPurgeKeepsCounters(t *testing.T) {
	c, err := New[string, int](4)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	c.Add("a", 1)
	c.Get("a")
	c.Purge()

	if c.Len() != 0 {
		t.Errorf("Len after Purge = %d, want 0", c.Len())
	}
	if s := c.Stats(); s.Hits != 1 {
		t.Errorf("Hits after Purge = %d, want 1", s.Hits)
	}
	if _, ok := c.Get("a"); ok {
		t.Error("entry survived Purge")
	}
}

func TestConcurrentAccess(t *testing.T) {
	c, err := New[string, int](64)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", i%32)
				c.Add(key, g)
				c.Get(key)
				if i%50 == 0 {
					c.Remove(key)
				}
			}
		}(g)
	}
	wg.Wait()

	s := c.Stats()
	if s.Hits+s.Misses != 8*200 {
		t.Errorf("lookups = %d, want %d", s.Hits+s.Misses, 8*200)
	}
}
