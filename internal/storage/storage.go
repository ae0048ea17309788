// Package storage defines the Unified Storage Engine's contracts (spec
// §4.1): typed per-entity CRUD, a transaction primitive, and the event
// and statistics surfaces every concrete engine (filestore, memstore)
// implements identically.
package storage

import (
	"context"
	"errors"

	"github.com/taskforge/orchestrator/internal/model"
)

// ErrorKind discriminates storage failures per spec §4.1.
type ErrorKind string

const (
	KindNotFound       ErrorKind = "not_found"
	KindAlreadyExists  ErrorKind = "already_exists"
	KindConflict       ErrorKind = "conflict"
	KindInvalid        ErrorKind = "invalid"
	KindStorageFailure ErrorKind = "storage_failure"
)

// Error is the discriminated error every Store method returns on
// failure; callers switch on Kind rather than sentinel comparison to
// avoid duplicating the taxonomy across filestore and memstore.
type Error struct {
	Kind    ErrorKind
	Entity  string
	ID      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Kind.String() + ": " + e.Entity + " " + e.ID + ": " + e.Message + ": " + e.Cause.Error()
	}
	return e.Kind.String() + ": " + e.Entity + " " + e.ID + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func (k ErrorKind) String() string { return string(k) }

// NewError builds a storage Error.
func NewError(kind ErrorKind, entity, id, message string, cause error) *Error {
	return &Error{Kind: kind, Entity: entity, ID: id, Message: message, Cause: cause}
}

// IsKind reports whether err is a storage Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// Format selects the on-disk encoding filestore uses.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Event is the post-commit notification the engine emits synchronously
// to subscribers (spec §4.1). Value is nil for delete operations.
type Event struct {
	Entity string
	Op     string
	ID     string
	Value  any
}

// EventHandler consumes Events. Handlers must be non-blocking; the
// engine delivers on the committing goroutine.
type EventHandler func(Event)

// OperationStats is a per-operation counter and moving-average latency,
// exposed through internal/metrics.
type OperationStats struct {
	Count       int64
	ErrorCount  int64
	AvgLatencyMS float64
}

// TaskFilter narrows TaskStore.Query results. Zero-value fields are
// ignored (match-all).
type TaskFilter struct {
	ProjectID string
	EpicID    string
	Status    model.TaskStatus
	Type      model.TaskType
}

func (f TaskFilter) matches(t model.AtomicTask) bool {
	if f.ProjectID != "" && t.ProjectID != f.ProjectID {
		return false
	}
	if f.EpicID != "" && t.EpicID != f.EpicID {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	return true
}

// Matches reports whether t satisfies the filter. Exported so both
// concrete engines share one filter-evaluation rule.
func (f TaskFilter) Matches(t model.AtomicTask) bool { return f.matches(t) }

// ProjectStore persists Project entities.
type ProjectStore interface {
	CreateProject(ctx context.Context, p model.Project) (model.Project, error)
	GetProject(ctx context.Context, id string) (model.Project, error)
	UpdateProject(ctx context.Context, p model.Project) (model.Project, error)
	DeleteProject(ctx context.Context, id string) error
	ExistsProject(ctx context.Context, id string) (bool, error)
	ListProjects(ctx context.Context) ([]model.Project, error)
}

// EpicStore persists Epic entities.
type EpicStore interface {
	CreateEpic(ctx context.Context, e model.Epic) (model.Epic, error)
	GetEpic(ctx context.Context, id string) (model.Epic, error)
	UpdateEpic(ctx context.Context, e model.Epic) (model.Epic, error)
	DeleteEpic(ctx context.Context, id string) error
	ExistsEpic(ctx context.Context, id string) (bool, error)
	ListEpicsByProject(ctx context.Context, projectID string) ([]model.Epic, error)
}

// TaskStore persists AtomicTask entities and answers the dependency and
// completion questions the Orchestrator (C8) and Response Processor
// (C9) need without depending on their packages.
type TaskStore interface {
	CreateTask(ctx context.Context, t model.AtomicTask) (model.AtomicTask, error)
	GetTask(ctx context.Context, id string) (model.AtomicTask, error)
	UpdateTask(ctx context.Context, t model.AtomicTask) (model.AtomicTask, error)
	DeleteTask(ctx context.Context, id string) error
	ExistsTask(ctx context.Context, id string) (bool, error)
	ListTasksByProject(ctx context.Context, projectID string) ([]model.AtomicTask, error)
	ListTasksByEpic(ctx context.Context, epicID string) ([]model.AtomicTask, error)
	QueryTasks(ctx context.Context, filter TaskFilter) ([]model.AtomicTask, error)

	// DependenciesSatisfied reports whether every required dependency of
	// taskID is in TaskCompleted state.
	DependenciesSatisfied(ctx context.Context, taskID string) (bool, error)

	// UpdateTaskCompletion applies the Response Processor's status and
	// metadata update to a task (spec §4.9.3).
	UpdateTaskCompletion(ctx context.Context, taskID string, status model.TaskStatus, metadata model.TaskMetadata) error
}

// DependencyStore persists Dependency edges.
type DependencyStore interface {
	CreateDependency(ctx context.Context, d model.Dependency) (model.Dependency, error)
	GetDependency(ctx context.Context, id string) (model.Dependency, error)
	DeleteDependency(ctx context.Context, id string) error
	ListDependenciesByTask(ctx context.Context, taskID string) ([]model.Dependency, error)
}

// GraphStore persists the per-project DependencyGraph snapshot.
type GraphStore interface {
	GetGraph(ctx context.Context, projectID string) (model.DependencyGraph, error)
	SaveGraph(ctx context.Context, projectID string, graph model.DependencyGraph) error
}

// Engine aggregates the per-entity stores with the engine-level
// transaction, event, and statistics surfaces (spec §4.1).
type Engine interface {
	ProjectStore
	EpicStore
	TaskStore
	DependencyStore
	GraphStore

	// WithTransaction acquires the Concurrent Access Manager lock for
	// every id in ids (in a stable order, to avoid deadlock), runs fn,
	// and releases the locks whether fn succeeds or fails.
	WithTransaction(ctx context.Context, ids []string, fn func(ctx context.Context) error) error

	// Subscribe registers fn for post-commit events and returns an
	// unsubscribe function.
	Subscribe(fn EventHandler) (unsubscribe func())

	// Stats returns a snapshot of per-operation counters and latency.
	Stats() map[string]OperationStats
}
