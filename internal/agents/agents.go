// Package agents implements the Agent Registry & Task Queue (spec §4.6):
// registration, heartbeats, and a bounded per-agent FIFO task queue.
package agents

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/taskforge/orchestrator/internal/logging"
	"github.com/taskforge/orchestrator/internal/model"
)

var (
	ErrAlreadyExists = errors.New("agents: agent already registered")
	ErrNotFound      = errors.New("agents: agent not found")
	ErrQueueFull     = errors.New("agents: task queue full")
)

const defaultBacklogFactor = 3

type entry struct {
	agent model.Agent
	queue []string
}

// Registry tracks agents and their task queues.
type Registry struct {
	mu            sync.Mutex
	agents        map[string]*entry
	backlogFactor int
	notify        Notifier
}

// Notifier decouples the registry from the notification bus so
// agent_offline events can be emitted without importing internal/notify
// (avoiding a C5<->C6 import cycle); the orchestrator wires a concrete
// implementation at startup.
type Notifier interface {
	AgentOffline(agentID string, requeued []string)
}

// New creates an empty Registry. backlogFactor bounds each agent's queue
// at maxConcurrentTasks * backlogFactor (spec §4.6); 0 uses the default.
func New(backlogFactor int, notify Notifier) *Registry {
	if backlogFactor <= 0 {
		backlogFactor = defaultBacklogFactor
	}
	return &Registry{agents: make(map[string]*entry), backlogFactor: backlogFactor, notify: notify}
}

// Register adds agent to the registry. A duplicate id is rejected unless
// force is true, in which case the existing entry (and its queue) is
// replaced.
func (r *Registry) Register(agent model.Agent, force bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[agent.ID]; exists && !force {
		return ErrAlreadyExists
	}
	r.agents[agent.ID] = &entry{agent: agent}
	return nil
}

// Unregister removes agentID from the registry.
func (r *Registry) Unregister(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, agentID)
}

// Get returns a copy of agentID's current state.
func (r *Registry) Get(agentID string) (model.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.agents[agentID]
	if !ok {
		return model.Agent{}, ErrNotFound
	}
	return e.agent, nil
}

// List returns a snapshot of every registered agent.
func (r *Registry) List() []model.Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Agent, 0, len(r.agents))
	for _, e := range r.agents {
		out = append(out, e.agent)
	}
	return out
}

// UpdateStatus transitions agentID's status.
func (r *Registry) UpdateStatus(agentID string, status model.AgentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.agents[agentID]
	if !ok {
		return ErrNotFound
	}
	e.agent.Status = status
	return nil
}

// UpdateHeartbeat records agentID as alive at now.
func (r *Registry) UpdateHeartbeat(agentID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.agents[agentID]
	if !ok {
		return ErrNotFound
	}
	e.agent.LastHeartbeat = now
	return nil
}

// AddTask appends taskID to agentID's queue, rejecting with ErrQueueFull
// once the queue reaches maxConcurrentTasks * backlogFactor.
func (r *Registry) AddTask(agentID, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.agents[agentID]
	if !ok {
		return ErrNotFound
	}
	limit := e.agent.Config.MaxConcurrent * r.backlogFactor
	if limit <= 0 {
		limit = defaultBacklogFactor
	}
	if len(e.queue) >= limit {
		return ErrQueueFull
	}
	e.queue = append(e.queue, taskID)
	e.agent.TaskQueue = append(e.agent.TaskQueue, taskID)
	return nil
}

// GetTasks atomically pops up to max task ids from the head of agentID's
// queue.
func (r *Registry) GetTasks(agentID string, max int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.agents[agentID]
	if !ok {
		return nil, ErrNotFound
	}
	if max <= 0 || max > len(e.queue) {
		max = len(e.queue)
	}
	popped := append([]string(nil), e.queue[:max]...)
	e.queue = e.queue[max:]
	e.agent.TaskQueue = append([]string(nil), e.queue...)
	return popped, nil
}

// Length reports the current queue depth for agentID.
func (r *Registry) Length(agentID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.agents[agentID]
	if !ok {
		return 0
	}
	return len(e.queue)
}

// RemoveTask removes taskID from whichever agent queue currently holds
// it, if any.
func (r *Registry) RemoveTask(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.agents {
		for i, id := range e.queue {
			if id == taskID {
				e.queue = append(e.queue[:i], e.queue[i+1:]...)
				e.agent.TaskQueue = append([]string(nil), e.queue...)
				return
			}
		}
	}
}

// Sweep marks agents whose heartbeat is older than timeout as offline,
// re-queuing their held tasks as unassigned and returning the ids of
// agents moved offline. Intended to run on a supervised interval (C10).
func (r *Registry) Sweep(ctx context.Context, timeout time.Duration, now time.Time, logger *logging.Logger) []string {
	r.mu.Lock()
	var offline []string
	type evicted struct {
		agentID string
		tasks   []string
	}
	var evictions []evicted
	for id, e := range r.agents {
		if e.agent.Status == model.AgentOffline {
			continue
		}
		if e.agent.LastHeartbeat.IsZero() || now.Sub(e.agent.LastHeartbeat) <= timeout {
			continue
		}
		requeued := append([]string(nil), e.queue...)
		e.agent.Status = model.AgentOffline
		e.queue = nil
		e.agent.TaskQueue = nil
		offline = append(offline, id)
		evictions = append(evictions, evicted{agentID: id, tasks: requeued})
	}
	notifier := r.notify
	r.mu.Unlock()

	for _, ev := range evictions {
		if logger != nil {
			logger.WithFields(map[string]interface{}{
				"agent_id":      ev.agentID,
				"requeued_tasks": ev.tasks,
			}).Warn("agent_offline: heartbeat timeout")
		}
		if notifier != nil {
			notifier.AgentOffline(ev.agentID, ev.tasks)
		}
	}
	return offline
}
