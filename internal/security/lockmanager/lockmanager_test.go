package lockmanager

import (
	"errors"
	"testing"
	"time"
)

func TestAcquireConflictReportsHolder(t *testing.T) {
	m := New()
	if _, _, err := m.Acquire("task:1", "agent-a", time.Second); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	_, holder, err := m.Acquire("task:1", "agent-b", time.Second)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if holder != "agent-a" {
		t.Fatalf("holder = %q, want agent-a", holder)
	}
}

func TestAcquireIsReentrantForSameOwner(t *testing.T) {
	m := New()
	h1, _, err := m.Acquire("task:1", "agent-a", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	h2, _, err := m.Acquire("task:1", "agent-a", time.Second)
	if err != nil {
		t.Fatalf("reentrant acquire: %v", err)
	}
	m.Release(h1)
	if _, ok := m.Holder("task:1"); !ok {
		t.Fatal("lock released too early after first Release of reentrant hold")
	}
	m.Release(h2)
	if _, ok := m.Holder("task:1"); ok {
		t.Fatal("lock still held after matching releases")
	}
}

func TestAcquireReclaimsExpiredLock(t *testing.T) {
	m := New()
	if _, _, err := m.Acquire("task:1", "agent-a", 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, _, err := m.Acquire("task:1", "agent-b", time.Second); err != nil {
		t.Fatalf("expected reclaim to succeed, got %v", err)
	}
}

func TestSweepRemovesExpiredLocks(t *testing.T) {
	m := New()
	if _, _, err := m.Acquire("task:1", "agent-a", 5*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(15 * time.Millisecond)
	if n := m.Sweep(); n != 1 {
		t.Fatalf("Sweep() = %d, want 1", n)
	}
}
