// Package filestore is the durable, on-disk Storage Engine (spec §4.1,
// §6.4): one file per entity under a configured data directory, staged
// temp-file-then-rename writes, JSON or YAML encoding, wrapped with the
// bounded read-through cache from internal/storage/cache.
package filestore

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/taskforge/orchestrator/internal/model"
	"github.com/taskforge/orchestrator/internal/security/lockmanager"
	"github.com/taskforge/orchestrator/internal/storage"
	"github.com/taskforge/orchestrator/internal/storage/cache"
)

// subdirectories mirrors spec §6.4's persisted layout. indexes, backups,
// cache, and logs are reserved for future use by this engine and are
// created so operators see the full layout up front.
var subdirectories = []string{
	"projects", "epics", "tasks", "dependencies", "graphs",
	"indexes", "backups", "cache", "logs",
}

type graphRecord struct {
	ProjectID string              `json:"project_id" yaml:"project_id"`
	Graph     model.DependencyGraph `json:"graph" yaml:"graph"`
}

// Config controls the durable engine's location, encoding, and cache.
type Config struct {
	DataDir string
	Format  storage.Format
	Cache   cache.Config
}

// Engine is the durable, on-disk storage.Engine implementation.
type Engine struct {
	projects     *table[model.Project]
	epics        *table[model.Epic]
	tasks        *table[model.AtomicTask]
	dependencies *table[model.Dependency]
	graphs       *table[graphRecord]

	cache *cache.Cache
	locks *lockmanager.Manager
	bus   storage.EventBus
	stats *storage.StatsTracker
}

var _ storage.Engine = (*Engine)(nil)

// New creates the directory layout (if absent) and opens an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Format == "" {
		cfg.Format = storage.FormatJSON
	}
	for _, sub := range subdirectories {
		if err := os.MkdirAll(filepath.Join(cfg.DataDir, sub), 0o755); err != nil {
			return nil, storage.NewError(storage.KindStorageFailure, "", "", "create data directory", err)
		}
	}

	c, err := cache.New(cfg.Cache)
	if err != nil {
		return nil, err
	}

	projects, err := newTable(cfg.DataDir, "projects", "project", cfg.Format, func(p model.Project) string { return p.ID })
	if err != nil {
		return nil, err
	}
	epics, err := newTable(cfg.DataDir, "epics", "epic", cfg.Format, func(e model.Epic) string { return e.ID })
	if err != nil {
		return nil, err
	}
	tasks, err := newTable(cfg.DataDir, "tasks", "task", cfg.Format, func(t model.AtomicTask) string { return t.ID })
	if err != nil {
		return nil, err
	}
	dependencies, err := newTable(cfg.DataDir, "dependencies", "dependency", cfg.Format, func(d model.Dependency) string { return d.ID })
	if err != nil {
		return nil, err
	}
	graphs, err := newTable(cfg.DataDir, "graphs", "graph", cfg.Format, func(g graphRecord) string { return g.ProjectID })
	if err != nil {
		return nil, err
	}

	return &Engine{
		projects:     projects,
		epics:        epics,
		tasks:        tasks,
		dependencies: dependencies,
		graphs:       graphs,
		cache:        c,
		locks:        lockmanager.New(),
		stats:        storage.NewStatsTracker(),
	}, nil
}

func (e *Engine) record(op string, start time.Time, err error) { e.stats.Record(op, start, err) }

func (e *Engine) publish(entity, op, id string, value any) {
	e.bus.Publish(storage.Event{Entity: entity, Op: op, ID: id, Value: value})
}

func (e *Engine) Subscribe(fn storage.EventHandler) func() { return e.bus.Subscribe(fn) }

func (e *Engine) Stats() map[string]storage.OperationStats { return e.stats.Snapshot() }

func (e *Engine) WithTransaction(ctx context.Context, ids []string, fn func(ctx context.Context) error) error {
	return storage.Transact(ctx, e.locks, "filestore", ids, fn)
}

func cacheKey(entity, id string) string { return entity + ":" + id }

// --- Projects ---

func (e *Engine) CreateProject(ctx context.Context, p model.Project) (model.Project, error) {
	start := time.Now()
	v, err := e.projects.create(p)
	e.record("CreateProject", start, err)
	if err != nil {
		return v, err
	}
	e.cache.Set(cacheKey("project", v.ID), v)
	e.publish("project", "create", v.ID, v)
	return v, nil
}

func (e *Engine) GetProject(ctx context.Context, id string) (model.Project, error) {
	start := time.Now()
	if cached, ok := e.cache.Get(cacheKey("project", id)); ok {
		e.record("GetProject", start, nil)
		return cached.(model.Project), nil
	}
	v, err := e.projects.get(id)
	e.record("GetProject", start, err)
	if err == nil {
		e.cache.Set(cacheKey("project", id), v)
	}
	return v, err
}

func (e *Engine) UpdateProject(ctx context.Context, p model.Project) (model.Project, error) {
	start := time.Now()
	p.UpdatedAt = time.Now()
	v, err := e.projects.update(p)
	e.record("UpdateProject", start, err)
	if err != nil {
		return v, err
	}
	e.cache.Set(cacheKey("project", v.ID), v)
	e.publish("project", "update", v.ID, v)
	return v, nil
}

func (e *Engine) DeleteProject(ctx context.Context, id string) error {
	start := time.Now()
	err := e.projects.delete(id)
	e.record("DeleteProject", start, err)
	if err != nil {
		return err
	}
	e.cache.Invalidate(cacheKey("project", id))
	e.publish("project", "delete", id, nil)
	return nil
}

func (e *Engine) ExistsProject(ctx context.Context, id string) (bool, error) {
	return e.projects.exists(id), nil
}

func (e *Engine) ListProjects(ctx context.Context) ([]model.Project, error) {
	return e.projects.list()
}

// --- Epics ---

func (e *Engine) CreateEpic(ctx context.Context, ep model.Epic) (model.Epic, error) {
	start := time.Now()
	v, err := e.epics.create(ep)
	e.record("CreateEpic", start, err)
	if err != nil {
		return v, err
	}
	e.cache.Set(cacheKey("epic", v.ID), v)
	e.publish("epic", "create", v.ID, v)
	return v, nil
}

func (e *Engine) GetEpic(ctx context.Context, id string) (model.Epic, error) {
	start := time.Now()
	if cached, ok := e.cache.Get(cacheKey("epic", id)); ok {
		e.record("GetEpic", start, nil)
		return cached.(model.Epic), nil
	}
	v, err := e.epics.get(id)
	e.record("GetEpic", start, err)
	if err == nil {
		e.cache.Set(cacheKey("epic", id), v)
	}
	return v, err
}

func (e *Engine) UpdateEpic(ctx context.Context, ep model.Epic) (model.Epic, error) {
	start := time.Now()
	ep.UpdatedAt = time.Now()
	v, err := e.epics.update(ep)
	e.record("UpdateEpic", start, err)
	if err != nil {
		return v, err
	}
	e.cache.Set(cacheKey("epic", v.ID), v)
	e.publish("epic", "update", v.ID, v)
	return v, nil
}

func (e *Engine) DeleteEpic(ctx context.Context, id string) error {
	start := time.Now()
	err := e.epics.delete(id)
	e.record("DeleteEpic", start, err)
	if err != nil {
		return err
	}
	e.cache.Invalidate(cacheKey("epic", id))
	e.publish("epic", "delete", id, nil)
	return nil
}

func (e *Engine) ExistsEpic(ctx context.Context, id string) (bool, error) {
	return e.epics.exists(id), nil
}

func (e *Engine) ListEpicsByProject(ctx context.Context, projectID string) ([]model.Epic, error) {
	all, err := e.epics.list()
	if err != nil {
		return nil, err
	}
	var out []model.Epic
	for _, ep := range all {
		if ep.ProjectID == projectID {
			out = append(out, ep)
		}
	}
	return out, nil
}

// --- Tasks ---

func (e *Engine) CreateTask(ctx context.Context, t model.AtomicTask) (model.AtomicTask, error) {
	start := time.Now()
	v, err := e.tasks.create(t)
	e.record("CreateTask", start, err)
	if err != nil {
		return v, err
	}
	e.cache.Set(cacheKey("task", v.ID), v)
	e.publish("task", "create", v.ID, v)
	return v, nil
}

func (e *Engine) GetTask(ctx context.Context, id string) (model.AtomicTask, error) {
	start := time.Now()
	if cached, ok := e.cache.Get(cacheKey("task", id)); ok {
		e.record("GetTask", start, nil)
		return cached.(model.AtomicTask), nil
	}
	v, err := e.tasks.get(id)
	e.record("GetTask", start, err)
	if err == nil {
		e.cache.Set(cacheKey("task", id), v)
	}
	return v, err
}

func (e *Engine) UpdateTask(ctx context.Context, t model.AtomicTask) (model.AtomicTask, error) {
	start := time.Now()
	t.UpdatedAt = time.Now()
	v, err := e.tasks.update(t)
	e.record("UpdateTask", start, err)
	if err != nil {
		return v, err
	}
	e.cache.Set(cacheKey("task", v.ID), v)
	e.publish("task", "update", v.ID, v)
	return v, nil
}

func (e *Engine) DeleteTask(ctx context.Context, id string) error {
	start := time.Now()
	err := e.tasks.delete(id)
	e.record("DeleteTask", start, err)
	if err != nil {
		return err
	}
	e.cache.Invalidate(cacheKey("task", id))
	e.publish("task", "delete", id, nil)
	return nil
}

func (e *Engine) ExistsTask(ctx context.Context, id string) (bool, error) {
	return e.tasks.exists(id), nil
}

func (e *Engine) ListTasksByProject(ctx context.Context, projectID string) ([]model.AtomicTask, error) {
	all, err := e.tasks.list()
	if err != nil {
		return nil, err
	}
	var out []model.AtomicTask
	for _, t := range all {
		if t.ProjectID == projectID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (e *Engine) ListTasksByEpic(ctx context.Context, epicID string) ([]model.AtomicTask, error) {
	all, err := e.tasks.list()
	if err != nil {
		return nil, err
	}
	var out []model.AtomicTask
	for _, t := range all {
		if t.EpicID == epicID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (e *Engine) QueryTasks(ctx context.Context, filter storage.TaskFilter) ([]model.AtomicTask, error) {
	all, err := e.tasks.list()
	if err != nil {
		return nil, err
	}
	var out []model.AtomicTask
	for _, t := range all {
		if filter.Matches(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (e *Engine) DependenciesSatisfied(ctx context.Context, taskID string) (bool, error) {
	if !e.tasks.exists(taskID) {
		return false, storage.NewError(storage.KindNotFound, "task", taskID, "not found", nil)
	}
	deps, err := e.ListDependenciesByTask(ctx, taskID)
	if err != nil {
		return false, err
	}
	for _, d := range deps {
		if d.Strength != model.StrengthRequired {
			continue
		}
		from, err := e.tasks.get(d.FromTask)
		if err != nil || from.Status != model.TaskCompleted {
			return false, nil
		}
	}
	return true, nil
}

func (e *Engine) UpdateTaskCompletion(ctx context.Context, taskID string, status model.TaskStatus, metadata model.TaskMetadata) error {
	start := time.Now()
	t, err := e.tasks.get(taskID)
	if err != nil {
		e.record("UpdateTaskCompletion", start, err)
		return err
	}
	t.Status = status
	t.Metadata.AgentResponse = metadata.AgentResponse
	t.Metadata.CompletedAt = metadata.CompletedAt
	t.UpdatedAt = time.Now()
	v, err := e.tasks.update(t)
	e.record("UpdateTaskCompletion", start, err)
	if err != nil {
		return err
	}
	e.cache.Set(cacheKey("task", taskID), v)
	e.publish("task", "complete", taskID, v)
	return nil
}

// --- Dependencies ---

func (e *Engine) CreateDependency(ctx context.Context, d model.Dependency) (model.Dependency, error) {
	v, err := e.dependencies.create(d)
	if err != nil {
		return v, err
	}
	e.publish("dependency", "create", v.ID, v)
	return v, nil
}

func (e *Engine) GetDependency(ctx context.Context, id string) (model.Dependency, error) {
	return e.dependencies.get(id)
}

func (e *Engine) DeleteDependency(ctx context.Context, id string) error {
	if err := e.dependencies.delete(id); err != nil {
		return err
	}
	e.publish("dependency", "delete", id, nil)
	return nil
}

func (e *Engine) ListDependenciesByTask(ctx context.Context, taskID string) ([]model.Dependency, error) {
	all, err := e.dependencies.list()
	if err != nil {
		return nil, err
	}
	var out []model.Dependency
	for _, d := range all {
		if d.ToTask == taskID {
			out = append(out, d)
		}
	}
	return out, nil
}

// --- Graphs ---

func (e *Engine) GetGraph(ctx context.Context, projectID string) (model.DependencyGraph, error) {
	rec, err := e.graphs.get(projectID)
	if err != nil {
		return model.DependencyGraph{}, err
	}
	return rec.Graph, nil
}

func (e *Engine) SaveGraph(ctx context.Context, projectID string, graph model.DependencyGraph) error {
	rec := graphRecord{ProjectID: projectID, Graph: graph}
	var err error
	if e.graphs.exists(projectID) {
		_, err = e.graphs.update(rec)
	} else {
		_, err = e.graphs.create(rec)
	}
	if err != nil {
		return err
	}
	e.publish("graph", "save", projectID, graph)
	return nil
}
