// Package responses implements the Response Processor (C9): validating
// and routing an agent's completion report through storage, the job
// registry, the agent queue, and the notification bus (spec §4.9).
package responses

import (
	"context"
	"errors"
	"sync"

	"github.com/taskforge/orchestrator/internal/agents"
	"github.com/taskforge/orchestrator/internal/jobs"
	"github.com/taskforge/orchestrator/internal/logging"
	"github.com/taskforge/orchestrator/internal/model"
	"github.com/taskforge/orchestrator/internal/notify"
)

var (
	ErrUnknownAgent  = errors.New("responses: unknown agent")
	ErrUnknownTask   = errors.New("responses: unknown task")
	ErrNotOwner      = errors.New("responses: response agent does not own the task's assignment")
	ErrInvalidStatus = errors.New("responses: status must be DONE, ERROR, or PARTIAL")
	ErrEmptyBody     = errors.New("responses: response body must not be empty")
)

// TaskStore is the subset of the Storage Engine the processor needs to
// update a task on completion.
type TaskStore interface {
	GetTask(ctx context.Context, taskID string) (model.AtomicTask, error)
	UpdateTaskCompletion(ctx context.Context, taskID string, status model.TaskStatus, metadata model.TaskMetadata) error
}

// AssignmentLookup resolves the current assignment owning a task, used
// to check response ownership.
type AssignmentLookup interface {
	GetAssignment(ctx context.Context, taskID string) (model.Assignment, error)
}

func taskStatusFor(status model.ResponseStatus) model.TaskStatus {
	switch status {
	case model.ResponseDone:
		return model.TaskCompleted
	case model.ResponseError:
		return model.TaskFailed
	default:
		return model.TaskInProgress
	}
}

// Processor is the Response Processor (C9).
type Processor struct {
	store       TaskStore
	assignments AssignmentLookup
	agentsReg   *agents.Registry
	jobsReg     *jobs.Registry
	bus         *notify.Bus
	logger      *logging.Logger

	mu       sync.Mutex
	history  map[string]model.AgentResponse
	taskJobs map[string]string
}

// New builds a Processor wired to its collaborators.
func New(store TaskStore, assignments AssignmentLookup, agentsReg *agents.Registry, jobsReg *jobs.Registry, bus *notify.Bus, logger *logging.Logger) *Processor {
	return &Processor{
		store:       store,
		assignments: assignments,
		agentsReg:   agentsReg,
		jobsReg:     jobsReg,
		bus:         bus,
		logger:      logger,
		history:     make(map[string]model.AgentResponse),
		taskJobs:    make(map[string]string),
	}
}

// RegisterJob associates taskID with the job handle opened for its
// execution, so Process can later close it. internal/server calls it
// with the job id that orchestrator.ExecuteTask returns.
func (p *Processor) RegisterJob(taskID, jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.taskJobs[taskID] = jobID
}

// Result summarizes what Process did, including which best-effort
// steps failed.
type Result struct {
	TaskStatus model.TaskStatus
	Errors     []string
}

// Process validates resp, persists it, and (best-effort) updates
// storage, the job registry, the agent queue, and the notification bus
// per spec §4.9's six steps.
func (p *Processor) Process(ctx context.Context, resp model.AgentResponse) (Result, error) {
	if resp.AgentID == "" {
		return Result{}, ErrUnknownAgent
	}
	if resp.TaskID == "" {
		return Result{}, ErrUnknownTask
	}
	switch resp.Status {
	case model.ResponseDone, model.ResponseError, model.ResponsePartial:
	default:
		return Result{}, ErrInvalidStatus
	}
	if resp.Body == "" {
		return Result{}, ErrEmptyBody
	}

	if _, err := p.agentsReg.Get(resp.AgentID); err != nil {
		return Result{}, ErrUnknownAgent
	}
	if _, err := p.store.GetTask(ctx, resp.TaskID); err != nil {
		return Result{}, ErrUnknownTask
	}
	if p.assignments != nil {
		assignment, err := p.assignments.GetAssignment(ctx, resp.TaskID)
		if err == nil && assignment.AgentID != "" && assignment.AgentID != resp.AgentID {
			return Result{}, ErrNotOwner
		}
	}

	p.mu.Lock()
	p.history[resp.TaskID] = resp
	jobID := p.taskJobs[resp.TaskID]
	p.mu.Unlock()

	status := taskStatusFor(resp.Status)
	result := Result{TaskStatus: status}

	if err := p.store.UpdateTaskCompletion(ctx, resp.TaskID, status, model.TaskMetadata{
		AgentResponse: resp.Body,
		CompletedAt:   resp.SubmittedAt,
	}); err != nil {
		p.logFailure(result, "update task completion", err)
		result.Errors = append(result.Errors, "storage update failed")
	}

	if jobID != "" {
		jobStatus := model.JobRunning
		switch resp.Status {
		case model.ResponseDone:
			jobStatus = model.JobCompleted
		case model.ResponseError:
			jobStatus = model.JobFailed
		}
		if err := p.jobsReg.SetResult(jobID, jobStatus, resp.CompletionDetails); err != nil {
			p.logFailure(result, "set job result", err)
			result.Errors = append(result.Errors, "job update failed")
		}
	}

	p.agentsReg.RemoveTask(resp.TaskID)
	if agent, err := p.agentsReg.Get(resp.AgentID); err == nil {
		_ = p.agentsReg.UpdateHeartbeat(resp.AgentID, resp.SubmittedAt)
		if agent.Status == model.AgentBusy && p.agentsReg.Length(resp.AgentID) < agent.Config.MaxConcurrent {
			_ = p.agentsReg.UpdateStatus(resp.AgentID, model.AgentIdle)
		}
	}

	p.bus.Broadcast("taskCompleted", map[string]any{
		"agentId":       resp.AgentID,
		"taskId":        resp.TaskID,
		"status":        string(resp.Status),
		"completedAt":   resp.SubmittedAt,
		"success":       resp.Status == model.ResponseDone,
		"executionTime": resp.CompletionDetails.Duration.Seconds(),
		"filesModified": resp.CompletionDetails.FilesModified,
	})
	if agent, err := p.agentsReg.Get(resp.AgentID); err == nil && agent.SessionID != "" {
		p.bus.Send(agent.SessionID, "responseReceived", map[string]any{
			"taskId":       resp.TaskID,
			"acknowledged": true,
			"nextAction":   "ready_for_new_task",
			"timestamp":    resp.SubmittedAt,
		})
	}

	return result, nil
}

// History returns the most recently processed response for taskID, if
// any.
func (p *Processor) History(taskID string) (model.AgentResponse, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	resp, ok := p.history[taskID]
	return resp, ok
}

func (p *Processor) logFailure(result Result, step string, err error) {
	_ = result
	if p.logger != nil {
		p.logger.WithFields(map[string]interface{}{"step": step}).WithError(err).Warn("response processing step failed")
	}
}
