package agents

import (
	"context"
	"time"

	"github.com/taskforge/orchestrator/internal/logging"
)

// RunHeartbeatSweeper runs Registry.Sweep on interval until ctx is
// cancelled, moving agents with a stale heartbeat offline.
func RunHeartbeatSweeper(ctx context.Context, r *Registry, interval, timeout time.Duration, logger *logging.Logger) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Sweep(ctx, timeout, now, logger)
		}
	}
}
