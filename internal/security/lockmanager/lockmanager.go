// Package lockmanager implements the Concurrent Access Manager (spec §4.2):
// reentrant, time-bounded locks keyed by "entity:id" that are automatically
// recoverable if their owner never releases them.
package lockmanager

import (
	"errors"
	"sync"
	"time"
)

// ErrConflict is returned by Acquire when resource is held by a different
// owner and has not yet expired.
var ErrConflict = errors.New("lockmanager: resource held by another owner")

// Handle identifies a held lock for Release.
type Handle struct {
	Resource string
	Owner    string
	token    uint64
}

type entry struct {
	owner    string
	token    uint64
	depth    int
	expires  time.Time
}

// Manager tracks resource locks in memory.
type Manager struct {
	mu      sync.Mutex
	locks   map[string]*entry
	counter uint64
}

// New creates an empty Manager.
func New() *Manager {
	return &Manager{locks: make(map[string]*entry)}
}

// Acquire attempts to lock resource for owner. A second Acquire by the same
// owner on the same resource is reentrant (depth increments, TTL refreshes).
// A conflicting owner is rejected with {ErrConflict, Holder} unless the
// existing lock's TTL has elapsed, in which case it is reclaimed.
func (m *Manager) Acquire(resource, owner string, timeout time.Duration) (Handle, string, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if e, ok := m.locks[resource]; ok && now.Before(e.expires) {
		if e.owner != owner {
			return Handle{}, e.owner, ErrConflict
		}
		e.depth++
		e.expires = now.Add(timeout)
		return Handle{Resource: resource, Owner: owner, token: e.token}, "", nil
	}

	m.counter++
	e := &entry{owner: owner, token: m.counter, depth: 1, expires: now.Add(timeout)}
	m.locks[resource] = e
	return Handle{Resource: resource, Owner: owner, token: e.token}, "", nil
}

// Release decrements the reentrancy depth and removes the lock once it
// reaches zero. Releasing a stale or foreign handle is a silent no-op.
func (m *Manager) Release(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.locks[h.Resource]
	if !ok || e.token != h.token {
		return
	}
	e.depth--
	if e.depth <= 0 {
		delete(m.locks, h.Resource)
	}
}

// Holder returns the current owner of resource, if any and not expired.
func (m *Manager) Holder(resource string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.locks[resource]
	if !ok || time.Now().After(e.expires) {
		return "", false
	}
	return e.owner, true
}

// Sweep removes all expired locks and returns how many were reclaimed,
// for use by the C10 background supervisor.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	n := 0
	for resource, e := range m.locks {
		if now.After(e.expires) {
			delete(m.locks, resource)
			n++
		}
	}
	return n
}
