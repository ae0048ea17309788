package decomposition

import (
	"sort"
	"strings"

	"github.com/taskforge/orchestrator/internal/model"
)

// DependencySuggestion is a candidate edge emitted by inference,
// reported with a confidence score (spec §4.7.4).
type DependencySuggestion struct {
	From       string
	To         string
	Kind       model.DependencyKind
	Confidence float64
	Reason     string
	Applied    bool
}

// InferDependencies runs the fixed heuristic set over tasks and returns
// every suggestion, flagging those at or above applyThreshold as
// Applied. Order is deterministic (sorted by From, then To) so callers
// get stable output across runs.
func InferDependencies(tasks []model.AtomicTask, applyThreshold float64) []DependencySuggestion {
	var suggestions []DependencySuggestion

	suggestions = append(suggestions, modelBeforeConsumer(tasks)...)
	suggestions = append(suggestions, implementationBeforeTest(tasks)...)
	suggestions = append(suggestions, configBeforeUse(tasks)...)
	suggestions = append(suggestions, sharedFileCollision(tasks)...)

	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].From != suggestions[j].From {
			return suggestions[i].From < suggestions[j].From
		}
		return suggestions[i].To < suggestions[j].To
	})

	for i := range suggestions {
		if suggestions[i].Confidence >= applyThreshold {
			suggestions[i].Applied = true
		}
	}
	return suggestions
}

func isModelTask(t model.AtomicTask) bool {
	return containsAny(t.Title, "model", "schema", "entity") || containsAny(joinPaths(t.FilePaths), "model", "schema")
}

func isConfigTask(t model.AtomicTask) bool {
	return containsAny(t.Title, "config", "configuration", "settings") || containsAny(joinPaths(t.FilePaths), "config")
}

func modelBeforeConsumer(tasks []model.AtomicTask) []DependencySuggestion {
	var out []DependencySuggestion
	for _, model_ := range tasks {
		if !isModelTask(model_) {
			continue
		}
		for _, consumer := range tasks {
			if consumer.ID == model_.ID || isModelTask(consumer) {
				continue
			}
			if consumer.Type == model.TaskTypeDevelopment && sameArea(model_, consumer) {
				out = append(out, DependencySuggestion{
					From: consumer.ID, To: model_.ID,
					Kind: model.DependencyData, Confidence: 0.75,
					Reason: "consumer depends on model task in the same area",
				})
			}
		}
	}
	return out
}

func implementationBeforeTest(tasks []model.AtomicTask) []DependencySuggestion {
	var out []DependencySuggestion
	for _, impl := range tasks {
		if impl.Type == model.TaskTypeTesting {
			continue
		}
		for _, test := range tasks {
			if test.ID == impl.ID || test.Type != model.TaskTypeTesting {
				continue
			}
			if sameArea(impl, test) {
				out = append(out, DependencySuggestion{
					From: test.ID, To: impl.ID,
					Kind: model.DependencyTaskOrder, Confidence: 0.85,
					Reason: "test depends on the implementation of the same area",
				})
			}
		}
	}
	return out
}

func configBeforeUse(tasks []model.AtomicTask) []DependencySuggestion {
	var out []DependencySuggestion
	for _, cfg := range tasks {
		if !isConfigTask(cfg) {
			continue
		}
		for _, user := range tasks {
			if user.ID == cfg.ID || isConfigTask(user) {
				continue
			}
			if sameArea(cfg, user) {
				out = append(out, DependencySuggestion{
					From: user.ID, To: cfg.ID,
					Kind: model.DependencyResource, Confidence: 0.7,
					Reason: "task depends on configuration defined in another task",
				})
			}
		}
	}
	return out
}

func sharedFileCollision(tasks []model.AtomicTask) []DependencySuggestion {
	var out []DependencySuggestion
	owners := make(map[string][]string)
	for _, t := range tasks {
		for _, fp := range t.FilePaths {
			owners[fp] = append(owners[fp], t.ID)
		}
	}
	seen := make(map[[2]string]bool)
	byID := make(map[string]model.AtomicTask, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	for _, ids := range owners {
		if len(ids) < 2 {
			continue
		}
		sort.Strings(ids)
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				key := [2]string{ids[i], ids[j]}
				if seen[key] {
					continue
				}
				seen[key] = true
				out = append(out, DependencySuggestion{
					From: ids[j], To: ids[i],
					Kind: model.DependencyTaskOrder, Confidence: 0.6,
					Reason: "tasks touch the same file path",
				})
			}
		}
	}
	return out
}

func sameArea(a, b model.AtomicTask) bool {
	if a.EpicID != "" && a.EpicID == b.EpicID {
		return true
	}
	for _, fa := range a.FilePaths {
		dirA := dirOf(fa)
		for _, fb := range b.FilePaths {
			if dirA != "" && dirA == dirOf(fb) {
				return true
			}
		}
	}
	return false
}

func dirOf(path string) string {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return ""
	}
	return path[:i]
}

func joinPaths(paths []string) string {
	return strings.Join(paths, " ")
}

func containsAny(haystack string, needles ...string) bool {
	low := strings.ToLower(haystack)
	for _, n := range needles {
		if strings.Contains(low, n) {
			return true
		}
	}
	return false
}
