package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskforge/orchestrator/internal/agents"
	"github.com/taskforge/orchestrator/internal/jobs"
	"github.com/taskforge/orchestrator/internal/logging"
	"github.com/taskforge/orchestrator/internal/model"
	"github.com/taskforge/orchestrator/internal/notify"
	"github.com/taskforge/orchestrator/internal/resilience"
	"github.com/taskforge/orchestrator/internal/security/lockmanager"
)

const (
	defaultExecutionTimeout = 30 * time.Minute
	heartbeatPollInterval   = 5 * time.Second
	lockTimeout             = 10 * time.Second
)

// TaskStore is the subset of the Storage Engine the orchestrator needs:
// reading a task and checking that its dependencies are satisfied.
type TaskStore interface {
	GetTask(ctx context.Context, taskID string) (model.AtomicTask, error)
	DependenciesSatisfied(ctx context.Context, taskID string) (bool, error)
}

// Deliverer pushes a task descriptor to an agent over whichever
// transport the agent is registered on (spec §4.8.5).
type Deliverer interface {
	Deliver(ctx context.Context, agent model.Agent, task model.AtomicTask) error
	// Cancel best-effort delivers a cancellation frame; errors are ignored
	// by callers since delivery is already best-effort at this point.
	Cancel(ctx context.Context, agent model.Agent, taskID string) error
}

// ExecuteOptions overrides executeTask's defaults.
type ExecuteOptions struct {
	Force    bool
	Timeout  time.Duration
	Strategy string
}

// ExecuteResult is executeTask's outcome (spec §4.8's four terminal
// shapes: queued, failed, completed/failed-from-response, cancelled).
type ExecuteResult struct {
	Status        string
	Queued        bool
	Message       string
	Error         string
	Assignment    *model.Assignment
	Response      *model.AgentResponse
	ExecutionID   string
	JobID         string
	TotalDuration time.Duration
}

type execution struct {
	id        string
	taskID    string
	agentID   string
	jobID     string
	startedAt time.Time

	mu        sync.Mutex
	cancelled bool
	responded bool
	response  chan model.AgentResponse
	cancelCh  chan struct{}
}

// Orchestrator is the Agent Orchestrator (C8).
type Orchestrator struct {
	agents     *agents.Registry
	locks      *lockmanager.Manager
	jobs       *jobs.Registry
	bus        *notify.Bus
	store      TaskStore
	deliverer  Deliverer
	weights    Weights
	strategy   string
	logger     *logging.Logger

	breakersMu sync.Mutex
	breakers   map[string]*resilience.CircuitBreaker

	executions sync.Map // execution id -> *execution
}

// Config configures an Orchestrator.
type Config struct {
	Weights  Weights
	Strategy string
}

// New builds an Orchestrator wired to its collaborators.
func New(agentRegistry *agents.Registry, locks *lockmanager.Manager, jobRegistry *jobs.Registry, bus *notify.Bus, store TaskStore, deliverer Deliverer, cfg Config, logger *logging.Logger) *Orchestrator {
	weights := cfg.Weights
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}
	strategy := cfg.Strategy
	if strategy == "" {
		strategy = DefaultStrategy
	}
	return &Orchestrator{
		agents:    agentRegistry,
		locks:     locks,
		jobs:      jobRegistry,
		bus:       bus,
		store:     store,
		deliverer: deliverer,
		weights:   weights,
		strategy:  strategy,
		logger:    logger,
		breakers:  make(map[string]*resilience.CircuitBreaker),
	}
}

func (o *Orchestrator) breakerFor(agentID string) *resilience.CircuitBreaker {
	o.breakersMu.Lock()
	defer o.breakersMu.Unlock()
	cb, ok := o.breakers[agentID]
	if !ok {
		cb = resilience.New(resilience.AgentCBConfig(agentID, o.logger))
		o.breakers[agentID] = cb
	}
	return cb
}

// ExecuteTask runs the pipeline described in spec §4.8: validate,
// lock, select an agent, deliver, and await a response (or timeout,
// cancellation, or agent loss).
func (o *Orchestrator) ExecuteTask(ctx context.Context, taskID string, opts ExecuteOptions) ExecuteResult {
	task, err := o.store.GetTask(ctx, taskID)
	if err != nil {
		return ExecuteResult{Status: "failed", Error: ErrTaskNotFound.Error()}
	}

	if !opts.Force {
		satisfied, err := o.store.DependenciesSatisfied(ctx, taskID)
		if err != nil || !satisfied {
			return ExecuteResult{Status: "failed", Error: ErrCyclicDependencies.Error()}
		}
	}

	handle, _, err := o.locks.Acquire("task:"+taskID, "orchestrator", lockTimeout)
	if err != nil {
		return ExecuteResult{Status: "failed", Error: "Task delivery failed"}
	}
	defer o.locks.Release(handle)

	strategyName := opts.Strategy
	if strategyName == "" {
		strategyName = o.strategy
	}
	agentID, err := FindBestAgent(strategyName, o.agents.List(), task, o.weights)
	if err != nil {
		return ExecuteResult{Status: "queued", Queued: true, Message: "no eligible agent available"}
	}

	assignment := &model.Assignment{
		ID:         uuid.NewString(),
		TaskID:     taskID,
		AgentID:    agentID,
		AcceptedAt: time.Now(),
		State:      model.AssignmentQueued,
	}
	o.bus.Broadcast("assignment", assignment)

	if err := o.agents.AddTask(agentID, taskID); err != nil {
		return ExecuteResult{Status: "failed", Error: "Task delivery failed"}
	}
	agent, err := o.agents.Get(agentID)
	if err != nil {
		return ExecuteResult{Status: "failed", Error: "Task delivery failed"}
	}
	if len(agent.TaskQueue) >= agent.Config.MaxConcurrent {
		_ = o.agents.UpdateStatus(agentID, model.AgentBusy)
	}

	jobID := o.jobs.Create("execute_task", map[string]string{"task_id": taskID, "agent_id": agentID})
	_ = o.jobs.SetProgress(jobID, model.JobRunning, "delivered to agent")

	exec := &execution{
		id:        uuid.NewString(),
		taskID:    taskID,
		agentID:   agentID,
		jobID:     jobID,
		startedAt: time.Now(),
		response:  make(chan model.AgentResponse, 1),
		cancelCh:  make(chan struct{}),
	}
	o.executions.Store(exec.id, exec)
	defer o.executions.Delete(exec.id)

	assignment.State = model.AssignmentDelivered
	cb := o.breakerFor(agentID)
	deliverErr := cb.Execute(ctx, func() error {
		return o.deliverer.Deliver(ctx, agent, task)
	})
	if deliverErr != nil {
		_ = o.jobs.SetResult(jobID, model.JobFailed, map[string]string{"error": "Task delivery failed"})
		o.agents.RemoveTask(taskID)
		return ExecuteResult{Status: "failed", Error: "Task delivery failed", ExecutionID: exec.id}
	}
	assignment.State = model.AssignmentExecuting

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultExecutionTimeout
	}
	deadline := time.Now().Add(timeout)
	assignment.Deadline = deadline

	return o.await(ctx, exec, assignment, deadline)
}

func (o *Orchestrator) await(ctx context.Context, exec *execution, assignment *model.Assignment, deadline time.Time) ExecuteResult {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	ticker := time.NewTicker(heartbeatPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return o.finishAborted(exec, assignment, "cancelled")
		case <-exec.cancelCh:
			return o.finishAborted(exec, assignment, "cancelled")
		case <-timer.C:
			return o.finishAborted(exec, assignment, "timeout")
		case <-ticker.C:
			agent, err := o.agents.Get(exec.agentID)
			if err == nil && agent.Status == model.AgentOffline {
				return o.finishAborted(exec, assignment, "agent_lost")
			}
		case resp := <-exec.response:
			assignment.State = model.AssignmentCompleted
			totalDuration := time.Since(exec.startedAt)
			status := "completed"
			if resp.Status == model.ResponseError {
				status = "failed"
				assignment.State = model.AssignmentFailed
			}
			return ExecuteResult{
				Status:        status,
				Assignment:    assignment,
				Response:      &resp,
				ExecutionID:   exec.id,
				JobID:         exec.jobID,
				TotalDuration: totalDuration,
			}
		}
	}
}

func (o *Orchestrator) finishAborted(exec *execution, assignment *model.Assignment, reason string) ExecuteResult {
	o.agents.RemoveTask(exec.taskID)
	switch reason {
	case "cancelled":
		assignment.State = model.AssignmentCancelled
		_ = o.jobs.SetResult(exec.jobID, model.JobFailed, map[string]string{"reason": "cancelled"})
		agent, err := o.agents.Get(exec.agentID)
		if err == nil {
			_ = o.deliverer.Cancel(context.Background(), agent, exec.taskID)
		}
		return ExecuteResult{Status: "cancelled", Assignment: assignment, ExecutionID: exec.id, JobID: exec.jobID}
	case "timeout":
		assignment.State = model.AssignmentTimedOut
		_ = o.jobs.SetResult(exec.jobID, model.JobFailed, map[string]string{"reason": "timeout"})
		return ExecuteResult{Status: "failed", Error: "execution timed out", Assignment: assignment, ExecutionID: exec.id, JobID: exec.jobID}
	default:
		assignment.State = model.AssignmentFailed
		_ = o.jobs.SetResult(exec.jobID, model.JobFailed, map[string]string{"reason": "agent_lost"})
		return ExecuteResult{Status: "failed", Error: "agent_lost", Assignment: assignment, ExecutionID: exec.id, JobID: exec.jobID}
	}
}

// SubmitResponse delivers an agent's response to the executeTask
// awaiter for its execution, if still pending.
func (o *Orchestrator) SubmitResponse(executionID string, resp model.AgentResponse) bool {
	v, ok := o.executions.Load(executionID)
	if !ok {
		return false
	}
	exec := v.(*execution)
	exec.mu.Lock()
	defer exec.mu.Unlock()
	if exec.responded || exec.cancelled {
		return false
	}
	exec.responded = true
	exec.response <- resp
	return true
}

// CancelExecution sets the cancellation sentinel for executionID. The
// awaiter observes it on its next select iteration.
func (o *Orchestrator) CancelExecution(executionID string) error {
	v, ok := o.executions.Load(executionID)
	if !ok {
		return ErrExecutionNotFound
	}
	exec := v.(*execution)
	exec.mu.Lock()
	defer exec.mu.Unlock()
	if exec.cancelled || exec.responded {
		return nil
	}
	exec.cancelled = true
	close(exec.cancelCh)
	return nil
}

// ExecutionForTask returns the id of the in-flight execution awaiting a
// response for taskID, if any. Callers use this to route an incoming
// agent response (keyed by task id) to SubmitResponse (keyed by
// execution id).
func (o *Orchestrator) ExecutionForTask(taskID string) (string, bool) {
	var found string
	o.executions.Range(func(_, v any) bool {
		exec := v.(*execution)
		if exec.taskID == taskID {
			found = exec.id
			return false
		}
		return true
	})
	return found, found != ""
}
