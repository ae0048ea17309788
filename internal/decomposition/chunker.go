package decomposition

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/taskforge/orchestrator/internal/model"
)

// ScoredTask is one task annotated with its atomicity verdict and,
// for chunks that failed to score, a placeholder marker.
type ScoredTask struct {
	Task         model.AtomicTask
	Atomicity    AtomicityResult
	AutoGenerated bool
}

// ScoreFunc scores one chunk of candidate tasks, typically by calling
// out to an external.Completer for batch-level review.
type ScoreFunc func(ctx context.Context, chunk []model.AtomicTask) ([]ScoredTask, error)

const defaultWorkerCount = 4

// BatchResult is ScoreBatch's outcome: the merged scored tasks plus
// the chunking metadata a caller reports back to its own caller (spec
// §4.7, §8's "chunked batch" scenario).
type BatchResult struct {
	Tasks        []ScoredTask
	ChunkingUsed bool
	TotalChunks  int
}

// ScoreBatch splits tasks into chunks of at most chunkSize (spec §4.7's
// default 40) and scores each chunk concurrently through a fixed-size
// worker pool. A chunk whose score call fails falls back to default-
// scored placeholders marked AutoGenerated rather than failing the
// whole batch. ChunkingUsed is true whenever the batch needed more
// than one chunk.
func ScoreBatch(ctx context.Context, tasks []model.AtomicTask, chunkSize, workers int, cfg AtomicityConfig, score ScoreFunc) (BatchResult, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultConfig().ChunkSize
	}
	if workers <= 0 {
		workers = defaultWorkerCount
	}

	chunks := splitChunks(tasks, chunkSize)
	results := make([][]ScoredTask, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var mu sync.Mutex
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			scored, err := score(gctx, chunk)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				results[i] = placeholderScore(chunk, cfg)
				return nil
			}
			results[i] = scored
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BatchResult{}, err
	}

	var merged []ScoredTask
	for _, r := range results {
		merged = append(merged, r...)
	}
	return BatchResult{
		Tasks:        merged,
		ChunkingUsed: len(chunks) > 1,
		TotalChunks:  len(chunks),
	}, nil
}

func splitChunks(tasks []model.AtomicTask, size int) [][]model.AtomicTask {
	var chunks [][]model.AtomicTask
	for start := 0; start < len(tasks); start += size {
		end := start + size
		if end > len(tasks) {
			end = len(tasks)
		}
		chunks = append(chunks, tasks[start:end])
	}
	return chunks
}

func placeholderScore(chunk []model.AtomicTask, cfg AtomicityConfig) []ScoredTask {
	out := make([]ScoredTask, len(chunk))
	for i, t := range chunk {
		out[i] = ScoredTask{
			Task:          t,
			Atomicity:     CheckAtomicity(t, cfg),
			AutoGenerated: true,
		}
	}
	return out
}
