// Package model defines the orchestrator's core domain entities (spec §3):
// projects, epics, atomic tasks, dependencies, agents, assignments, jobs,
// and session connections.
package model

import "time"

// TaskType classifies the kind of work an AtomicTask represents.
type TaskType string

const (
	TaskTypeDevelopment TaskType = "development"
	TaskTypeTesting     TaskType = "testing"
	TaskTypeResearch    TaskType = "research"
	TaskTypeDocs        TaskType = "docs"
	TaskTypeDeployment  TaskType = "deployment"
)

// TaskPriority orders work within an epic or agent queue.
type TaskPriority string

const (
	PriorityLow      TaskPriority = "low"
	PriorityMedium   TaskPriority = "medium"
	PriorityHigh     TaskPriority = "high"
	PriorityCritical TaskPriority = "critical"
)

// TaskStatus is an AtomicTask's lifecycle state.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskBlocked    TaskStatus = "blocked"
)

// EpicStatus is an Epic's lifecycle state.
type EpicStatus string

const (
	EpicPending    EpicStatus = "pending"
	EpicActive     EpicStatus = "active"
	EpicCompleted  EpicStatus = "completed"
	EpicBlocked    EpicStatus = "blocked"
)

// DependencyKind classifies why one task depends on another.
type DependencyKind string

const (
	DependencyTaskOrder DependencyKind = "task_order"
	DependencyData      DependencyKind = "data"
	DependencyResource  DependencyKind = "resource"
	DependencyKnowledge DependencyKind = "knowledge"
)

// DependencyStrength indicates whether a dependency blocks execution.
type DependencyStrength string

const (
	StrengthRequired DependencyStrength = "required"
	StrengthOptional DependencyStrength = "optional"
)

// AgentStatus is an Agent's current availability.
type AgentStatus string

const (
	AgentIdle    AgentStatus = "idle"
	AgentBusy    AgentStatus = "busy"
	AgentOffline AgentStatus = "offline"
	AgentError   AgentStatus = "error"
)

// AssignmentState tracks a task's delivery lifecycle to an agent.
type AssignmentState string

const (
	AssignmentQueued    AssignmentState = "queued"
	AssignmentDelivered AssignmentState = "delivered"
	AssignmentExecuting AssignmentState = "executing"
	AssignmentCompleted AssignmentState = "completed"
	AssignmentFailed    AssignmentState = "failed"
	AssignmentCancelled AssignmentState = "cancelled"
	AssignmentTimedOut  AssignmentState = "timed_out"
)

// JobStatus is a Job's pollable lifecycle state.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// IsTerminal reports whether status is a completed or failed end state.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// TransportKind identifies which channel an Agent communicates over.
type TransportKind string

const (
	TransportStdio     TransportKind = "stdio"
	TransportHTTP      TransportKind = "http"
	TransportWebSocket TransportKind = "websocket"
)

// ProjectConfig holds per-project operating limits and toggles.
type ProjectConfig struct {
	MaxConcurrentTasks int            `json:"max_concurrent_tasks" yaml:"max_concurrent_tasks"`
	PerformanceTargets map[string]int `json:"performance_targets,omitempty" yaml:"performance_targets,omitempty"`
	FeatureToggles     map[string]bool `json:"feature_toggles,omitempty" yaml:"feature_toggles,omitempty"`
}

// Project is the top-level unit of work (spec §3).
type Project struct {
	ID          string        `json:"id" yaml:"id"`
	Name        string        `json:"name" yaml:"name"`
	RootDir     string        `json:"root_dir" yaml:"root_dir"`
	Config      ProjectConfig `json:"config" yaml:"config"`
	EpicIDs     []string      `json:"epic_ids" yaml:"epic_ids"`
	TechStack   []string      `json:"tech_stack,omitempty" yaml:"tech_stack,omitempty"`
	CreatedAt   time.Time     `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at" yaml:"updated_at"`
}

// Epic groups related tasks within a project's functional area.
type Epic struct {
	ID            string     `json:"id" yaml:"id"`
	ProjectID     string     `json:"project_id" yaml:"project_id"`
	Area          string     `json:"area" yaml:"area"`
	Status        EpicStatus `json:"status" yaml:"status"`
	Priority      TaskPriority `json:"priority" yaml:"priority"`
	TaskIDs       []string   `json:"task_ids" yaml:"task_ids"`
	DependsOnEpicIDs []string `json:"depends_on_epic_ids,omitempty" yaml:"depends_on_epic_ids,omitempty"`
	CreatedAt     time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" yaml:"updated_at"`
}

// TaskMetadata carries timestamps, tags, and the agent's final response.
type TaskMetadata struct {
	Tags          []string  `json:"tags,omitempty" yaml:"tags,omitempty"`
	AgentResponse string    `json:"agent_response,omitempty" yaml:"agent_response,omitempty"`
	StartedAt     time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	CompletedAt   time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// AtomicTask is the smallest unit of work an agent can execute (spec §3).
type AtomicTask struct {
	ID                 string       `json:"id" yaml:"id"`
	ProjectID          string       `json:"project_id" yaml:"project_id"`
	EpicID             string       `json:"epic_id" yaml:"epic_id"`
	Title              string       `json:"title" yaml:"title"`
	Description        string       `json:"description" yaml:"description"`
	Type               TaskType     `json:"type" yaml:"type"`
	Priority           TaskPriority `json:"priority" yaml:"priority"`
	Status             TaskStatus   `json:"status" yaml:"status"`
	EstimatedHours     float64      `json:"estimated_hours" yaml:"estimated_hours"`
	DependencyIDs      []string     `json:"dependency_ids,omitempty" yaml:"dependency_ids,omitempty"`
	DependentIDs       []string     `json:"dependent_ids,omitempty" yaml:"dependent_ids,omitempty"`
	FilePaths          []string     `json:"file_paths,omitempty" yaml:"file_paths,omitempty"`
	AcceptanceCriteria []string     `json:"acceptance_criteria,omitempty" yaml:"acceptance_criteria,omitempty"`
	Metadata           TaskMetadata `json:"metadata" yaml:"metadata"`
	CreatedAt          time.Time    `json:"created_at" yaml:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at" yaml:"updated_at"`
}

// IsAtomic reports whether the task is within the atomicity hour ceiling
// used by the Decomposition Engine (spec §4.7) to decide further splitting.
func (t AtomicTask) IsAtomic(hourCeiling float64) bool {
	return t.EstimatedHours <= hourCeiling
}

// Dependency is a directed edge between two tasks.
type Dependency struct {
	ID        string             `json:"id" yaml:"id"`
	FromTask  string             `json:"from_task" yaml:"from_task"`
	ToTask    string             `json:"to_task" yaml:"to_task"`
	Kind      DependencyKind     `json:"kind" yaml:"kind"`
	Strength  DependencyStrength `json:"strength" yaml:"strength"`
	Rationale string             `json:"rationale,omitempty" yaml:"rationale,omitempty"`
}

// DependencyGraph is the set of tasks and edges the Decomposition Engine
// plans execution batches over.
type DependencyGraph struct {
	TaskIDs      []string     `json:"task_ids" yaml:"task_ids"`
	Dependencies []Dependency `json:"dependencies" yaml:"dependencies"`
}

// AgentPerformance is a rolling record of an agent's delivery history.
type AgentPerformance struct {
	TasksCompleted  int       `json:"tasks_completed" yaml:"tasks_completed"`
	AvgCompletionMS int64     `json:"avg_completion_ms" yaml:"avg_completion_ms"`
	SuccessRate     float64   `json:"success_rate" yaml:"success_rate"`
	LastActive      time.Time `json:"last_active" yaml:"last_active"`
}

// AgentConfig holds per-agent operating limits.
type AgentConfig struct {
	MaxConcurrent  int           `json:"max_concurrent" yaml:"max_concurrent"`
	PreferredTypes []TaskType    `json:"preferred_types,omitempty" yaml:"preferred_types,omitempty"`
	Timeout        time.Duration `json:"timeout" yaml:"timeout"`
}

// Agent is a worker capable of executing tasks (spec §3).
type Agent struct {
	ID              string       `json:"id" yaml:"id"`
	Name            string       `json:"name" yaml:"name"`
	Capabilities    []string     `json:"capabilities" yaml:"capabilities"`
	Status          AgentStatus  `json:"status" yaml:"status"`
	CurrentTaskID   string       `json:"current_task_id,omitempty" yaml:"current_task_id,omitempty"`
	TaskQueue       []string     `json:"task_queue" yaml:"task_queue"`
	Performance     AgentPerformance `json:"performance" yaml:"performance"`
	Config          AgentConfig  `json:"config" yaml:"config"`
	Transport       TransportKind `json:"transport" yaml:"transport"`
	SessionID       string       `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	LastHeartbeat   time.Time    `json:"last_heartbeat" yaml:"last_heartbeat"`
	Endpoint        string       `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	BearerToken     string       `json:"-" yaml:"-"`
}

// IsAvailable reports whether the agent can accept another task.
func (a Agent) IsAvailable() bool {
	return a.Status == AgentIdle && len(a.TaskQueue) < a.Config.MaxConcurrent
}

// Assignment tracks a single task's delivery to an agent.
type Assignment struct {
	ID         string          `json:"id" yaml:"id"`
	TaskID     string          `json:"task_id" yaml:"task_id"`
	AgentID    string          `json:"agent_id" yaml:"agent_id"`
	AcceptedAt time.Time       `json:"accepted_at" yaml:"accepted_at"`
	Deadline   time.Time       `json:"deadline" yaml:"deadline"`
	State      AssignmentState `json:"state" yaml:"state"`
}

// IsOverdue reports whether the assignment has passed its deadline while
// still in flight.
func (a Assignment) IsOverdue(now time.Time) bool {
	switch a.State {
	case AssignmentCompleted, AssignmentFailed, AssignmentCancelled, AssignmentTimedOut:
		return false
	default:
		return !a.Deadline.IsZero() && now.After(a.Deadline)
	}
}

// Job is a client-visible handle on a long-running tool invocation
// (spec §3, §4.4).
type Job struct {
	ID             string      `json:"id" yaml:"id"`
	ToolName       string      `json:"tool_name" yaml:"tool_name"`
	Params         any         `json:"params,omitempty" yaml:"params,omitempty"`
	Status         JobStatus   `json:"status" yaml:"status"`
	ProgressMessage string     `json:"progress_message,omitempty" yaml:"progress_message,omitempty"`
	Result         any         `json:"result,omitempty" yaml:"result,omitempty"`
	CreatedAt      time.Time   `json:"created_at" yaml:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at" yaml:"updated_at"`
	LastAccessedAt time.Time   `json:"last_accessed_at" yaml:"last_accessed_at"`
}

// SessionConnection represents an open push channel to a client (spec §3,
// §4.5). Writer is left to the notify package's transport-specific type.
type SessionConnection struct {
	SessionID string    `json:"session_id" yaml:"session_id"`
	Open      bool      `json:"open" yaml:"open"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// ResponseStatus is the sentinel keyword an agent reports alongside its
// completion details (spec §4.9, §6.3).
type ResponseStatus string

const (
	ResponseDone    ResponseStatus = "DONE"
	ResponseError   ResponseStatus = "ERROR"
	ResponsePartial ResponseStatus = "PARTIAL"
)

// CompletionDetails carries the structured metadata an agent reports
// alongside a response (spec §4.9.3).
type CompletionDetails struct {
	FilesModified  []string      `json:"files_modified,omitempty" yaml:"files_modified,omitempty"`
	TestsPassed    bool          `json:"tests_passed" yaml:"tests_passed"`
	BuildSucceeded bool          `json:"build_succeeded" yaml:"build_succeeded"`
	Duration       time.Duration `json:"duration" yaml:"duration"`
}

// AgentResponse is the payload an agent submits on completing (or
// failing) an assigned task (spec §4.9, §6.3).
type AgentResponse struct {
	AgentID           string            `json:"agent_id" yaml:"agent_id"`
	TaskID            string            `json:"task_id" yaml:"task_id"`
	Status            ResponseStatus    `json:"status" yaml:"status"`
	Body              string            `json:"response" yaml:"response"`
	CompletionDetails CompletionDetails `json:"completion_details,omitempty" yaml:"completion_details,omitempty"`
	SubmittedAt       time.Time         `json:"submitted_at" yaml:"submitted_at"`
}
