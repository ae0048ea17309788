package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/taskforge/orchestrator/internal/security/lockmanager"
)

const defaultTransactionTimeout = 10 * time.Second

// Transact acquires locks for every id in ids (sorted, to keep acquisition
// order stable across callers and avoid deadlock) via the given lock
// manager, runs fn, and releases every acquired lock regardless of
// outcome. Shared by filestore and memstore so both implement
// withTransaction (spec §4.1) identically.
func Transact(ctx context.Context, locks *lockmanager.Manager, owner string, ids []string, fn func(ctx context.Context) error) error {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	held := make([]lockmanager.Handle, 0, len(sorted))
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			locks.Release(held[i])
		}
	}()

	for _, id := range sorted {
		handle, holder, err := locks.Acquire(id, owner, defaultTransactionTimeout)
		if err != nil {
			return NewError(KindConflict, "", id, fmt.Sprintf("locked by %s", holder), err)
		}
		held = append(held, handle)
	}
	return fn(ctx)
}
