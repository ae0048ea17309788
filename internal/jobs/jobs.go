// Package jobs implements the Job Registry & Rate Limiter (spec §4.4):
// a handle on every long-running tool invocation, with adaptive per-job
// poll backoff and a background sweeper that evicts idle terminal jobs.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskforge/orchestrator/internal/model"
)

// ErrMissingJobResult is returned by Get/GetWithRateLimit when a terminal
// job has no stored result (spec §4.4's "missing result rule").
var ErrMissingJobResult = errors.New("jobs: terminal job has no stored result")

// ErrNotFound indicates no job exists with the given id.
var ErrNotFound = errors.New("jobs: job not found")

const (
	initialPollInterval = time.Second
	maxPollInterval     = 5 * time.Second
	backoffMultiplier   = 1.5
)

type record struct {
	job          model.Job
	pollInterval time.Duration
}

// Registry tracks job state and enforces per-job poll rate limiting.
type Registry struct {
	mu       sync.Mutex
	jobs     map[string]*record
	retention time.Duration
}

// New creates an empty Registry. retention bounds how long a terminal job
// survives after its last access before the sweeper evicts it.
func New(retention time.Duration) *Registry {
	if retention <= 0 {
		retention = 10 * time.Minute
	}
	return &Registry{jobs: make(map[string]*record), retention: retention}
}

// Create registers a new job for toolName/params and returns its id.
func (r *Registry) Create(toolName string, params any) string {
	now := time.Now()
	id := uuid.NewString()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[id] = &record{
		job: model.Job{
			ID:             id,
			ToolName:       toolName,
			Params:         params,
			Status:         model.JobPending,
			CreatedAt:      now,
			UpdatedAt:      now,
			LastAccessedAt: now,
		},
		pollInterval: initialPollInterval,
	}
	return id
}

// SetProgress updates a job's status and progress message.
func (r *Registry) SetProgress(jobID string, status model.JobStatus, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	rec.job.Status = status
	rec.job.ProgressMessage = message
	rec.job.UpdatedAt = time.Now()
	return nil
}

// SetResult stores a job's final result and marks it terminal.
func (r *Registry) SetResult(jobID string, status model.JobStatus, result any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	rec.job.Status = status
	rec.job.Result = result
	rec.job.UpdatedAt = time.Now()
	if status.IsTerminal() {
		rec.pollInterval = 0
	}
	return nil
}

// Get returns the job unconditionally, without rate limiting or bumping
// last_accessed_at.
func (r *Registry) Get(jobID string) (model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.jobs[jobID]
	if !ok {
		return model.Job{}, ErrNotFound
	}
	if rec.job.Status.IsTerminal() && rec.job.Result == nil {
		return model.Job{}, ErrMissingJobResult
	}
	return rec.job, nil
}

// PollResult is the outcome of a rate-limited poll.
type PollResult struct {
	Job        *model.Job
	WaitTimeMS int64
	ShouldWait bool
}

// GetWithRateLimit enforces the per-job poll interval (spec §4.4): an
// initial 1s interval multiplicatively backs off to 5s while running, and
// drops to 0 once the job reaches a terminal state. Polling sooner than
// the allowed interval returns ShouldWait=true with no job payload, and
// last_accessed_at is left untouched.
func (r *Registry) GetWithRateLimit(jobID string) (PollResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.jobs[jobID]
	if !ok {
		return PollResult{}, ErrNotFound
	}

	now := time.Now()
	// The first poll after Create is always honoured and keeps the
	// initial interval; later polls are spaced by the current interval.
	firstPoll := !rec.job.LastAccessedAt.After(rec.job.CreatedAt)
	elapsed := now.Sub(rec.job.LastAccessedAt)
	if !firstPoll && rec.pollInterval > 0 && elapsed < rec.pollInterval {
		return PollResult{
			WaitTimeMS: (rec.pollInterval - elapsed).Milliseconds(),
			ShouldWait: true,
		}, nil
	}

	if rec.job.Status.IsTerminal() && rec.job.Result == nil {
		return PollResult{}, ErrMissingJobResult
	}

	rec.job.LastAccessedAt = now
	if rec.job.Status == model.JobRunning && !firstPoll {
		next := time.Duration(float64(rec.pollInterval) * backoffMultiplier)
		if next > maxPollInterval {
			next = maxPollInterval
		}
		if next < initialPollInterval {
			next = initialPollInterval
		}
		rec.pollInterval = next
	}

	jobCopy := rec.job
	return PollResult{Job: &jobCopy}, nil
}

// Sweep evicts terminal jobs idle past the retention window and returns
// how many were removed. Intended to run on a supervised interval (C10).
func (r *Registry) Sweep(ctx context.Context) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	evicted := 0
	for id, rec := range r.jobs {
		if !rec.job.Status.IsTerminal() {
			continue
		}
		if now.Sub(rec.job.LastAccessedAt) > r.retention {
			delete(r.jobs, id)
			evicted++
		}
	}
	return evicted
}

// Len reports the number of tracked jobs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}
