package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/taskforge/orchestrator/internal/model"
)

func TestCreateAndGet(t *testing.T) {
	r := New(time.Minute)
	id := r.Create("decompose", map[string]string{"task": "t1"})

	job, err := r.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != model.JobPending {
		t.Fatalf("status = %v, want pending", job.Status)
	}
}

func TestSetResultMarksTerminalAndStoresResult(t *testing.T) {
	r := New(time.Minute)
	id := r.Create("decompose", nil)
	if err := r.SetResult(id, model.JobCompleted, map[string]int{"children": 3}); err != nil {
		t.Fatal(err)
	}
	job, err := r.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != model.JobCompleted || job.Result == nil {
		t.Fatalf("unexpected job state: %+v", job)
	}
}

func TestGetMissingResultOnTerminalJob(t *testing.T) {
	r := New(time.Minute)
	id := r.Create("decompose", nil)
	if err := r.SetProgress(id, model.JobFailed, "boom"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Get(id); !errors.Is(err, ErrMissingJobResult) {
		t.Fatalf("expected ErrMissingJobResult, got %v", err)
	}
}

func TestGetWithRateLimitEnforcesMinimumInterval(t *testing.T) {
	r := New(time.Minute)
	id := r.Create("decompose", nil)
	_ = r.SetProgress(id, model.JobRunning, "starting")

	first, err := r.GetWithRateLimit(id)
	if err != nil {
		t.Fatal(err)
	}
	if first.ShouldWait {
		t.Fatal("expected first poll to be honoured immediately")
	}

	second, err := r.GetWithRateLimit(id)
	if err != nil {
		t.Fatal(err)
	}
	if !second.ShouldWait || second.WaitTimeMS <= 0 {
		t.Fatalf("expected second immediate poll to be rate limited, got %+v", second)
	}
}

func TestGetWithRateLimitHasNoBackoffOnceTerminal(t *testing.T) {
	r := New(time.Minute)
	id := r.Create("decompose", nil)
	if err := r.SetResult(id, model.JobCompleted, "done"); err != nil {
		t.Fatal(err)
	}

	first, err := r.GetWithRateLimit(id)
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.GetWithRateLimit(id)
	if err != nil {
		t.Fatal(err)
	}
	if first.ShouldWait || second.ShouldWait {
		t.Fatal("terminal jobs should never be rate limited")
	}
}

func TestSweepEvictsIdleTerminalJobs(t *testing.T) {
	r := New(10 * time.Millisecond)
	id := r.Create("decompose", nil)
	if err := r.SetResult(id, model.JobCompleted, "done"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)

	if n := r.Sweep(context.Background()); n != 1 {
		t.Fatalf("Sweep() = %d, want 1", n)
	}
	if r.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", r.Len())
	}
}

func TestSweepLeavesActiveJobsAlone(t *testing.T) {
	r := New(10 * time.Millisecond)
	id := r.Create("decompose", nil)
	_ = r.SetProgress(id, model.JobRunning, "working")
	time.Sleep(20 * time.Millisecond)

	if n := r.Sweep(context.Background()); n != 0 {
		t.Fatalf("Sweep() = %d, want 0 for non-terminal job", n)
	}
}
