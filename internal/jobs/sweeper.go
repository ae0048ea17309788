package jobs

import (
	"context"
	"time"

	"github.com/taskforge/orchestrator/internal/logging"
)

// RunSweeper runs Registry.Sweep on interval until ctx is cancelled,
// matching the ticker-plus-stop-channel shape the teacher uses for its
// background schedulers.
func RunSweeper(ctx context.Context, r *Registry, interval time.Duration, logger *logging.Logger) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(ctx); n > 0 && logger != nil {
				logger.WithFields(map[string]interface{}{"evicted": n}).Debug("swept terminal jobs")
			}
		}
	}
}
