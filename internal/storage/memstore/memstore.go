// Package memstore is the in-memory Storage Engine (spec §4.1),
// mirroring the teacher's internal/app/storage/memory default-store
// pattern: plain maps guarded by one mutex, used for tests and for
// embedding in environments with no durable filesystem.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/taskforge/orchestrator/internal/model"
	"github.com/taskforge/orchestrator/internal/security/lockmanager"
	"github.com/taskforge/orchestrator/internal/storage"
)

// Engine is the in-memory storage.Engine implementation.
type Engine struct {
	mu sync.RWMutex

	projects     map[string]model.Project
	epics        map[string]model.Epic
	tasks        map[string]model.AtomicTask
	dependencies map[string]model.Dependency
	graphs       map[string]model.DependencyGraph

	locks *lockmanager.Manager
	bus   storage.EventBus
	stats *storage.StatsTracker
}

var _ storage.Engine = (*Engine)(nil)

// New builds an empty in-memory Engine.
func New() *Engine {
	return &Engine{
		projects:     make(map[string]model.Project),
		epics:        make(map[string]model.Epic),
		tasks:        make(map[string]model.AtomicTask),
		dependencies: make(map[string]model.Dependency),
		graphs:       make(map[string]model.DependencyGraph),
		locks:        lockmanager.New(),
		stats:        storage.NewStatsTracker(),
	}
}

func (e *Engine) record(op string, start time.Time, err error) {
	e.stats.Record(op, start, err)
}

func (e *Engine) publish(entity, op, id string, value any) {
	e.bus.Publish(storage.Event{Entity: entity, Op: op, ID: id, Value: value})
}

// Subscribe registers an event handler.
func (e *Engine) Subscribe(fn storage.EventHandler) func() { return e.bus.Subscribe(fn) }

// Stats returns a snapshot of per-operation counters and latency.
func (e *Engine) Stats() map[string]storage.OperationStats { return e.stats.Snapshot() }

// WithTransaction acquires locks for ids and runs fn.
func (e *Engine) WithTransaction(ctx context.Context, ids []string, fn func(ctx context.Context) error) error {
	return storage.Transact(ctx, e.locks, "memstore", ids, fn)
}

// --- Projects ---

func (e *Engine) CreateProject(ctx context.Context, p model.Project) (model.Project, error) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.projects[p.ID]; ok {
		err := storage.NewError(storage.KindAlreadyExists, "project", p.ID, "already exists", nil)
		e.record("CreateProject", start, err)
		return model.Project{}, err
	}
	e.projects[p.ID] = p
	e.record("CreateProject", start, nil)
	e.publish("project", "create", p.ID, p)
	return p, nil
}

func (e *Engine) GetProject(ctx context.Context, id string) (model.Project, error) {
	start := time.Now()
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.projects[id]
	if !ok {
		err := storage.NewError(storage.KindNotFound, "project", id, "not found", nil)
		e.record("GetProject", start, err)
		return model.Project{}, err
	}
	e.record("GetProject", start, nil)
	return p, nil
}

func (e *Engine) UpdateProject(ctx context.Context, p model.Project) (model.Project, error) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.projects[p.ID]; !ok {
		err := storage.NewError(storage.KindNotFound, "project", p.ID, "not found", nil)
		e.record("UpdateProject", start, err)
		return model.Project{}, err
	}
	p.UpdatedAt = time.Now()
	e.projects[p.ID] = p
	e.record("UpdateProject", start, nil)
	e.publish("project", "update", p.ID, p)
	return p, nil
}

func (e *Engine) DeleteProject(ctx context.Context, id string) error {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.projects[id]; !ok {
		err := storage.NewError(storage.KindNotFound, "project", id, "not found", nil)
		e.record("DeleteProject", start, err)
		return err
	}
	delete(e.projects, id)
	e.record("DeleteProject", start, nil)
	e.publish("project", "delete", id, nil)
	return nil
}

func (e *Engine) ExistsProject(ctx context.Context, id string) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.projects[id]
	return ok, nil
}

func (e *Engine) ListProjects(ctx context.Context) ([]model.Project, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]model.Project, 0, len(e.projects))
	for _, p := range e.projects {
		out = append(out, p)
	}
	return out, nil
}

// --- Epics ---

func (e *Engine) CreateEpic(ctx context.Context, ep model.Epic) (model.Epic, error) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.epics[ep.ID]; ok {
		err := storage.NewError(storage.KindAlreadyExists, "epic", ep.ID, "already exists", nil)
		e.record("CreateEpic", start, err)
		return model.Epic{}, err
	}
	e.epics[ep.ID] = ep
	e.record("CreateEpic", start, nil)
	e.publish("epic", "create", ep.ID, ep)
	return ep, nil
}

func (e *Engine) GetEpic(ctx context.Context, id string) (model.Epic, error) {
	start := time.Now()
	e.mu.RLock()
	defer e.mu.RUnlock()
	ep, ok := e.epics[id]
	if !ok {
		err := storage.NewError(storage.KindNotFound, "epic", id, "not found", nil)
		e.record("GetEpic", start, err)
		return model.Epic{}, err
	}
	e.record("GetEpic", start, nil)
	return ep, nil
}

func (e *Engine) UpdateEpic(ctx context.Context, ep model.Epic) (model.Epic, error) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.epics[ep.ID]; !ok {
		err := storage.NewError(storage.KindNotFound, "epic", ep.ID, "not found", nil)
		e.record("UpdateEpic", start, err)
		return model.Epic{}, err
	}
	ep.UpdatedAt = time.Now()
	e.epics[ep.ID] = ep
	e.record("UpdateEpic", start, nil)
	e.publish("epic", "update", ep.ID, ep)
	return ep, nil
}

func (e *Engine) DeleteEpic(ctx context.Context, id string) error {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.epics[id]; !ok {
		err := storage.NewError(storage.KindNotFound, "epic", id, "not found", nil)
		e.record("DeleteEpic", start, err)
		return err
	}
	delete(e.epics, id)
	e.record("DeleteEpic", start, nil)
	e.publish("epic", "delete", id, nil)
	return nil
}

func (e *Engine) ExistsEpic(ctx context.Context, id string) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.epics[id]
	return ok, nil
}

func (e *Engine) ListEpicsByProject(ctx context.Context, projectID string) ([]model.Epic, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []model.Epic
	for _, ep := range e.epics {
		if ep.ProjectID == projectID {
			out = append(out, ep)
		}
	}
	return out, nil
}

// --- Tasks ---

func (e *Engine) CreateTask(ctx context.Context, t model.AtomicTask) (model.AtomicTask, error) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.tasks[t.ID]; ok {
		err := storage.NewError(storage.KindAlreadyExists, "task", t.ID, "already exists", nil)
		e.record("CreateTask", start, err)
		return model.AtomicTask{}, err
	}
	e.tasks[t.ID] = t
	e.record("CreateTask", start, nil)
	e.publish("task", "create", t.ID, t)
	return t, nil
}

func (e *Engine) GetTask(ctx context.Context, id string) (model.AtomicTask, error) {
	start := time.Now()
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tasks[id]
	if !ok {
		err := storage.NewError(storage.KindNotFound, "task", id, "not found", nil)
		e.record("GetTask", start, err)
		return model.AtomicTask{}, err
	}
	e.record("GetTask", start, nil)
	return t, nil
}

func (e *Engine) UpdateTask(ctx context.Context, t model.AtomicTask) (model.AtomicTask, error) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.tasks[t.ID]; !ok {
		err := storage.NewError(storage.KindNotFound, "task", t.ID, "not found", nil)
		e.record("UpdateTask", start, err)
		return model.AtomicTask{}, err
	}
	t.UpdatedAt = time.Now()
	e.tasks[t.ID] = t
	e.record("UpdateTask", start, nil)
	e.publish("task", "update", t.ID, t)
	return t, nil
}

func (e *Engine) DeleteTask(ctx context.Context, id string) error {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.tasks[id]; !ok {
		err := storage.NewError(storage.KindNotFound, "task", id, "not found", nil)
		e.record("DeleteTask", start, err)
		return err
	}
	delete(e.tasks, id)
	e.record("DeleteTask", start, nil)
	e.publish("task", "delete", id, nil)
	return nil
}

func (e *Engine) ExistsTask(ctx context.Context, id string) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.tasks[id]
	return ok, nil
}

func (e *Engine) ListTasksByProject(ctx context.Context, projectID string) ([]model.AtomicTask, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []model.AtomicTask
	for _, t := range e.tasks {
		if t.ProjectID == projectID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (e *Engine) ListTasksByEpic(ctx context.Context, epicID string) ([]model.AtomicTask, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []model.AtomicTask
	for _, t := range e.tasks {
		if t.EpicID == epicID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (e *Engine) QueryTasks(ctx context.Context, filter storage.TaskFilter) ([]model.AtomicTask, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []model.AtomicTask
	for _, t := range e.tasks {
		if filter.Matches(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

// DependenciesSatisfied reports whether every required dependency
// targeting taskID references a task in TaskCompleted state.
func (e *Engine) DependenciesSatisfied(ctx context.Context, taskID string) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if _, ok := e.tasks[taskID]; !ok {
		return false, storage.NewError(storage.KindNotFound, "task", taskID, "not found", nil)
	}
	for _, d := range e.dependencies {
		if d.ToTask != taskID || d.Strength != model.StrengthRequired {
			continue
		}
		from, ok := e.tasks[d.FromTask]
		if !ok || from.Status != model.TaskCompleted {
			return false, nil
		}
	}
	return true, nil
}

// UpdateTaskCompletion applies the Response Processor's status and
// completion metadata to a task.
func (e *Engine) UpdateTaskCompletion(ctx context.Context, taskID string, status model.TaskStatus, metadata model.TaskMetadata) error {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tasks[taskID]
	if !ok {
		err := storage.NewError(storage.KindNotFound, "task", taskID, "not found", nil)
		e.record("UpdateTaskCompletion", start, err)
		return err
	}
	t.Status = status
	t.Metadata.AgentResponse = metadata.AgentResponse
	t.Metadata.CompletedAt = metadata.CompletedAt
	t.UpdatedAt = time.Now()
	e.tasks[taskID] = t
	e.record("UpdateTaskCompletion", start, nil)
	e.publish("task", "complete", taskID, t)
	return nil
}

// --- Dependencies ---

func (e *Engine) CreateDependency(ctx context.Context, d model.Dependency) (model.Dependency, error) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.dependencies[d.ID]; ok {
		err := storage.NewError(storage.KindAlreadyExists, "dependency", d.ID, "already exists", nil)
		e.record("CreateDependency", start, err)
		return model.Dependency{}, err
	}
	e.dependencies[d.ID] = d
	e.record("CreateDependency", start, nil)
	e.publish("dependency", "create", d.ID, d)
	return d, nil
}

func (e *Engine) GetDependency(ctx context.Context, id string) (model.Dependency, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d, ok := e.dependencies[id]
	if !ok {
		return model.Dependency{}, storage.NewError(storage.KindNotFound, "dependency", id, "not found", nil)
	}
	return d, nil
}

func (e *Engine) DeleteDependency(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.dependencies[id]; !ok {
		return storage.NewError(storage.KindNotFound, "dependency", id, "not found", nil)
	}
	delete(e.dependencies, id)
	e.publish("dependency", "delete", id, nil)
	return nil
}

func (e *Engine) ListDependenciesByTask(ctx context.Context, taskID string) ([]model.Dependency, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []model.Dependency
	for _, d := range e.dependencies {
		if d.ToTask == taskID {
			out = append(out, d)
		}
	}
	return out, nil
}

// --- Graphs ---

func (e *Engine) GetGraph(ctx context.Context, projectID string) (model.DependencyGraph, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	g, ok := e.graphs[projectID]
	if !ok {
		return model.DependencyGraph{}, storage.NewError(storage.KindNotFound, "graph", projectID, "not found", nil)
	}
	return g, nil
}

func (e *Engine) SaveGraph(ctx context.Context, projectID string, graph model.DependencyGraph) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.graphs[projectID] = graph
	e.publish("graph", "save", projectID, graph)
	return nil
}
