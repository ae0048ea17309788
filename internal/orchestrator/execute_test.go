package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/taskforge/orchestrator/internal/agents"
	"github.com/taskforge/orchestrator/internal/jobs"
	"github.com/taskforge/orchestrator/internal/model"
	"github.com/taskforge/orchestrator/internal/notify"
	"github.com/taskforge/orchestrator/internal/security/lockmanager"
)

type fakeStore struct {
	tasks     map[string]model.AtomicTask
	satisfied bool
}

func (f *fakeStore) GetTask(ctx context.Context, taskID string) (model.AtomicTask, error) {
	t, ok := f.tasks[taskID]
	if !ok {
		return model.AtomicTask{}, ErrTaskNotFound
	}
	return t, nil
}

func (f *fakeStore) DependenciesSatisfied(ctx context.Context, taskID string) (bool, error) {
	return f.satisfied, nil
}

type fakeDeliverer struct {
	deliverErr error
	delivered  chan struct{}
	cancelled  chan struct{}
}

func newFakeDeliverer() *fakeDeliverer {
	return &fakeDeliverer{delivered: make(chan struct{}, 1), cancelled: make(chan struct{}, 1)}
}

func (f *fakeDeliverer) Deliver(ctx context.Context, agent model.Agent, task model.AtomicTask) error {
	if f.deliverErr != nil {
		return f.deliverErr
	}
	f.delivered <- struct{}{}
	return nil
}

func (f *fakeDeliverer) Cancel(ctx context.Context, agent model.Agent, taskID string) error {
	f.cancelled <- struct{}{}
	return nil
}

func newTestOrchestrator(store TaskStore, deliverer Deliverer) (*Orchestrator, *agents.Registry) {
	reg := agents.New(10, nil)
	locks := lockmanager.New()
	jobReg := jobs.New(time.Minute)
	bus := notify.New(4, nil)
	return New(reg, locks, jobReg, bus, store, deliverer, Config{}, nil), reg
}

func TestExecuteTaskReturnsQueuedWhenNoAgent(t *testing.T) {
	store := &fakeStore{tasks: map[string]model.AtomicTask{"t1": {ID: "t1"}}, satisfied: true}
	orch, _ := newTestOrchestrator(store, newFakeDeliverer())

	result := orch.ExecuteTask(context.Background(), "t1", ExecuteOptions{})
	if result.Status != "queued" || !result.Queued {
		t.Fatalf("expected queued result, got %+v", result)
	}
}

func TestExecuteTaskFailsOnUnsatisfiedDependencies(t *testing.T) {
	store := &fakeStore{tasks: map[string]model.AtomicTask{"t1": {ID: "t1"}}, satisfied: false}
	orch, _ := newTestOrchestrator(store, newFakeDeliverer())

	result := orch.ExecuteTask(context.Background(), "t1", ExecuteOptions{})
	if result.Status != "failed" {
		t.Fatalf("expected failed result, got %+v", result)
	}
}

func TestExecuteTaskDeliversAndCompletesOnResponse(t *testing.T) {
	store := &fakeStore{tasks: map[string]model.AtomicTask{"t1": {ID: "t1"}}, satisfied: true}
	deliverer := newFakeDeliverer()
	orch, reg := newTestOrchestrator(store, deliverer)
	_ = reg.Register(model.Agent{ID: "a1", Status: model.AgentIdle, Config: model.AgentConfig{MaxConcurrent: 2}}, false)

	done := make(chan ExecuteResult, 1)
	go func() {
		done <- orch.ExecuteTask(context.Background(), "t1", ExecuteOptions{Timeout: time.Second})
	}()

	select {
	case <-deliverer.delivered:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	var execID string
	for {
		found := false
		orch.executions.Range(func(key, value any) bool {
			execID = key.(string)
			found = true
			return false
		})
		if found {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if !orch.SubmitResponse(execID, model.AgentResponse{AgentID: "a1", TaskID: "t1", Status: model.ResponseDone}) {
		t.Fatal("expected SubmitResponse to succeed")
	}

	select {
	case result := <-done:
		if result.Status != "completed" {
			t.Fatalf("expected completed, got %+v", result)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for execution to finish")
	}
}

func TestExecuteTaskFailsWhenDeliveryErrors(t *testing.T) {
	store := &fakeStore{tasks: map[string]model.AtomicTask{"t1": {ID: "t1"}}, satisfied: true}
	deliverer := newFakeDeliverer()
	deliverer.deliverErr = errors.New("network unreachable")
	orch, reg := newTestOrchestrator(store, deliverer)
	_ = reg.Register(model.Agent{ID: "a1", Status: model.AgentIdle, Config: model.AgentConfig{MaxConcurrent: 2}}, false)

	result := orch.ExecuteTask(context.Background(), "t1", ExecuteOptions{Timeout: time.Second})
	if result.Status != "failed" || result.Error != "Task delivery failed" {
		t.Fatalf("expected delivery failure, got %+v", result)
	}
}

func TestExecuteTaskTimesOut(t *testing.T) {
	store := &fakeStore{tasks: map[string]model.AtomicTask{"t1": {ID: "t1"}}, satisfied: true}
	deliverer := newFakeDeliverer()
	orch, reg := newTestOrchestrator(store, deliverer)
	_ = reg.Register(model.Agent{ID: "a1", Status: model.AgentIdle, Config: model.AgentConfig{MaxConcurrent: 2}}, false)

	result := orch.ExecuteTask(context.Background(), "t1", ExecuteOptions{Timeout: 20 * time.Millisecond})
	if result.Status != "failed" || result.Error != "execution timed out" {
		t.Fatalf("expected timeout failure, got %+v", result)
	}
}

func TestCancelExecutionAbortsAwaiter(t *testing.T) {
	store := &fakeStore{tasks: map[string]model.AtomicTask{"t1": {ID: "t1"}}, satisfied: true}
	deliverer := newFakeDeliverer()
	orch, reg := newTestOrchestrator(store, deliverer)
	_ = reg.Register(model.Agent{ID: "a1", Status: model.AgentIdle, Config: model.AgentConfig{MaxConcurrent: 2}}, false)

	done := make(chan ExecuteResult, 1)
	go func() {
		done <- orch.ExecuteTask(context.Background(), "t1", ExecuteOptions{Timeout: 5 * time.Second})
	}()

	select {
	case <-deliverer.delivered:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	var execID string
	for {
		found := false
		orch.executions.Range(func(key, value any) bool {
			execID = key.(string)
			found = true
			return false
		})
		if found {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if err := orch.CancelExecution(execID); err != nil {
		t.Fatal(err)
	}

	select {
	case result := <-done:
		if result.Status != "cancelled" {
			t.Fatalf("expected cancelled, got %+v", result)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for cancellation to take effect")
	}
}
