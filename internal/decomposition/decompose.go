package decomposition

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskforge/orchestrator/internal/external"
	"github.com/taskforge/orchestrator/internal/model"
)

// ErrMalformedOutput is returned when the completer's output cannot be
// parsed into the expected child-task list, even after the stricter
// retry (spec §4.7's failure modes).
var ErrMalformedOutput = fmt.Errorf("decomposition: malformed decomposition output")

const (
	minChildTasks = 2
	maxChildTasks = 10
)

// Config tunes the decomposition engine's thresholds.
type Config struct {
	Atomicity          AtomicityConfig
	Research           ResearchConfig
	DependencyThreshold float64
	ChunkSize          int
}

// DefaultConfig matches spec §4.7's stated defaults.
func DefaultConfig() Config {
	return Config{
		Atomicity:           DefaultAtomicityConfig(),
		Research:            DefaultResearchConfig(),
		DependencyThreshold: 0.75,
		ChunkSize:           40,
	}
}

// Engine is the Decomposition & Dependency Engine (C7). It never calls
// an LLM directly — it consumes the external.Completer and
// external.CodeMapper boundaries.
type Engine struct {
	completer  external.Completer
	codeMapper external.CodeMapper
	cfg        Config
}

// New builds an Engine. completer is required; codeMapper may be nil if
// callers supply a CodebaseSummary directly.
func New(completer external.Completer, codeMapper external.CodeMapper, cfg Config) *Engine {
	if cfg.ChunkSize <= 0 {
		cfg = DefaultConfig()
	}
	return &Engine{completer: completer, codeMapper: codeMapper, cfg: cfg}
}

type childDraft struct {
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	Type               string   `json:"type"`
	FilePaths          []string `json:"file_paths"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
	EstimatedHours     float64  `json:"estimated_hours"`
}

// Decompose produces 2-10 child tasks for task under project context
// summary, inferring dependencies and rejecting any candidate graph
// that would introduce a cycle.
func (e *Engine) Decompose(ctx context.Context, task model.AtomicTask, summary external.CodebaseSummary) ([]model.AtomicTask, []DependencySuggestion, error) {
	atomicity := CheckAtomicity(task, e.cfg.Atomicity)
	if atomicity.Atomic {
		return []model.AtomicTask{task}, nil, nil
	}

	drafts, err := e.requestDecomposition(ctx, task, summary, false)
	if err != nil {
		if err != ErrMalformedOutput {
			return nil, nil, err
		}
		drafts, err = e.requestDecomposition(ctx, task, summary, true)
		if err != nil {
			return nil, nil, err
		}
	}

	children := draftsToTasks(task, drafts)

	suggestions := InferDependencies(children, e.cfg.DependencyThreshold)
	graph := model.DependencyGraph{}
	for _, c := range children {
		graph.TaskIDs = append(graph.TaskIDs, c.ID)
	}
	for _, s := range suggestions {
		if !s.Applied {
			continue
		}
		graph.Dependencies = append(graph.Dependencies, model.Dependency{
			ID: uuid.NewString(), FromTask: s.From, ToTask: s.To, Kind: s.Kind, Strength: model.StrengthRequired,
		})
	}
	if HasCycle(graph) {
		return nil, nil, ErrCycle
	}

	return children, suggestions, nil
}

func (e *Engine) requestDecomposition(ctx context.Context, task model.AtomicTask, summary external.CodebaseSummary, strict bool) ([]childDraft, error) {
	prompt := buildDecompositionPrompt(task, summary, strict)
	raw, err := e.completer.Complete(ctx, prompt, external.CompletionOptions{MaxTokens: 2048, Temperature: 0.2})
	if err != nil {
		return nil, err
	}

	var drafts []childDraft
	if err := json.Unmarshal([]byte(raw), &drafts); err != nil {
		return nil, ErrMalformedOutput
	}
	if len(drafts) < minChildTasks {
		return nil, ErrMalformedOutput
	}
	if len(drafts) > maxChildTasks {
		drafts = drafts[:maxChildTasks]
	}

	expectedFiles := len(task.FilePaths)
	if expectedFiles > 0 {
		scored := 0
		for _, d := range drafts {
			if len(d.FilePaths) > 0 {
				scored++
			}
		}
		if float64(scored)/float64(len(drafts)) < 0.8 {
			return nil, ErrMalformedOutput
		}
	}
	return drafts, nil
}

func buildDecompositionPrompt(task model.AtomicTask, summary external.CodebaseSummary, strict bool) string {
	base := fmt.Sprintf("Decompose task %q (%s) into 2-10 atomic child tasks as a JSON array of objects with title, description, type, file_paths, acceptance_criteria, estimated_hours. Project languages: %v, frameworks: %v.",
		task.Title, task.Description, summary.Languages, summary.Frameworks)
	if strict {
		base += " Respond with ONLY a JSON array, no prose, no markdown fences, every element fully populated with concrete file_paths and acceptance_criteria."
	}
	return base
}

func draftsToTasks(parent model.AtomicTask, drafts []childDraft) []model.AtomicTask {
	now := time.Now()
	children := make([]model.AtomicTask, 0, len(drafts))
	for _, d := range drafts {
		taskType := model.TaskType(d.Type)
		switch taskType {
		case model.TaskTypeDevelopment, model.TaskTypeTesting, model.TaskTypeResearch, model.TaskTypeDocs, model.TaskTypeDeployment:
		default:
			taskType = model.TaskTypeDevelopment
		}
		children = append(children, model.AtomicTask{
			ID:                 uuid.NewString(),
			ProjectID:          parent.ProjectID,
			EpicID:             parent.EpicID,
			Title:              d.Title,
			Description:        d.Description,
			Type:               taskType,
			Priority:           parent.Priority,
			Status:             model.TaskPending,
			EstimatedHours:     d.EstimatedHours,
			FilePaths:          d.FilePaths,
			AcceptanceCriteria: d.AcceptanceCriteria,
			CreatedAt:          now,
			UpdatedAt:          now,
		})
	}
	return children
}
