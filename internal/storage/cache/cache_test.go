package cache

import (
	"testing"
	"time"
)

func TestDisabledCacheAlwaysMisses(t *testing.T) {
	c, err := New(Config{Enabled: false})
	if err != nil {
		t.Fatal(err)
	}
	c.Set("task:1", "value")
	if _, ok := c.Get("task:1"); ok {
		t.Fatal("expected miss on disabled cache")
	}
}

func TestSetThenGetHits(t *testing.T) {
	c, err := New(Config{Enabled: true, MaxSize: 10, TTL: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	c.Set("task:1", "value")
	v, ok := c.Get("task:1")
	if !ok || v != "value" {
		t.Fatalf("Get() = %v, %v, want value, true", v, ok)
	}
}

func TestGetExpiresAfterTTL(t *testing.T) {
	c, err := New(Config{Enabled: true, MaxSize: 10, TTL: 10 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	c.Set("task:1", "value")
	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("task:1"); ok {
		t.Fatal("expected entry to have expired")
	}
}

func TestSetMutatesExistingEntryInPlace(t *testing.T) {
	c, err := New(Config{Enabled: true, MaxSize: 10, TTL: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	c.Set("task:1", "v1")
	c.Set("task:1", "v2")
	v, ok := c.Get("task:1")
	if !ok || v != "v2" {
		t.Fatalf("Get() = %v, %v, want v2, true", v, ok)
	}
}

func TestInvalidateRemovesEntry(t *testing.T) {
	c, err := New(Config{Enabled: true, MaxSize: 10, TTL: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	c.Set("task:1", "value")
	c.Invalidate("task:1")
	if _, ok := c.Get("task:1"); ok {
		t.Fatal("expected miss after invalidate")
	}
}

func TestLRUEvictsOldestBeyondMaxSize(t *testing.T) {
	c, err := New(Config{Enabled: true, MaxSize: 2, TTL: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected oldest entry to be evicted")
	}
}
