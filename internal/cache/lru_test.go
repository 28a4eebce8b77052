package cache

import (
	"testing"
	"time"
)

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }

func TestLRUCacheGetSet(t *testing.T) {
	c := NewLRUCache[string, int](2, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("Get(a) = %v, %v", v, ok)
	}

	// "b" is now least recently used and gets evicted.
	c.Set("c", 3)
	if _, ok := c.Get("b"); ok {
		t.Fatalf("expected b to be evicted")
	}
	if c.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", c.Size())
	}

	c.Set("a", 10)
	if v, _ := c.Get("a"); v != 10 {
		t.Fatalf("overwrite failed, got %d", v)
	}

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected a to be deleted")
	}
}

func TestLRUCacheExpiry(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := NewLRUCache[int64, string](10, time.Minute).WithClock(clock.now)

	c.Set(1, "one")
	c.Set(2, "two")
	clock.t = clock.t.Add(30 * time.Second)
	c.Set(3, "three")

	clock.t = clock.t.Add(45 * time.Second)
	if _, ok := c.Get(1); ok {
		t.Fatalf("expected key 1 to be expired")
	}
	if removed := c.CleanExpired(); removed != 1 {
		t.Fatalf("CleanExpired() = %d, want 1", removed)
	}
	if v, ok := c.Get(3); !ok || v != "three" {
		t.Fatalf("unexpired key lost: %v %v", v, ok)
	}
}

func TestManagerCleanNow(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	a := NewLRUCache[string, int](10, time.Second).WithClock(clock.now)
	b := NewLRUCache[string, int](10, time.Second).WithClock(clock.now)
	a.Set("x", 1)
	b.Set("y", 2)
	b.Set("z", 3)

	m := NewManager()
	m.Register(a)
	m.Register(b)

	clock.t = clock.t.Add(2 * time.Second)
	if n := m.CleanNow(); n != 3 {
		t.Fatalf("CleanNow() = %d, want 3", n)
	}

	m.StartCleanup(time.Hour)
	m.Stop()
	m.Stop()
}
