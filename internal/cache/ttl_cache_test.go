package cache

import (
	"testing"
	"time"
)

func TestTTLCache_GetSet(t *testing.T) {
	c := New[string, []string](time.Minute)

	if _, ok := c.Get("entities"); ok {
		t.Fatal("empty cache should miss")
	}
	c.Set("entities", []string{"id", "name"})
	got, ok := c.Get("entities")
	if !ok || len(got) != 2 {
		t.Errorf("Get() = %v, %v", got, ok)
	}
}

func TestTTLCache_Expiry(t *testing.T) {
	c := New[string, int](time.Minute)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	c.Set("a", 1)
	clock = clock.Add(30 * time.Second)
	if _, ok := c.Get("a"); !ok {
		t.Error("entry should still be fresh")
	}
	clock = clock.Add(31 * time.Second)
	if _, ok := c.Get("a"); ok {
		t.Error("entry should have expired")
	}
	if c.Len() != 1 {
		t.Errorf("Len() counts expired entries, got %d", c.Len())
	}
}

func TestTTLCache_Disabled(t *testing.T) {
	c := New[string, int](0)
	c.Set("a", 1)
	if _, ok := c.Get("a"); ok {
		t.Error("zero TTL must disable caching")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestTTLCache_DeleteAndInvalidate(t *testing.T) {
	c := New[string, int](time.Hour)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("deleted key should miss")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("other keys should survive Delete")
	}

	c.Invalidate()
	if c.Len() != 0 {
		t.Errorf("Len() after Invalidate = %d", c.Len())
	}
}
