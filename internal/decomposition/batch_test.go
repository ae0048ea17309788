package decomposition

import (
	"testing"

	"github.com/taskforge/orchestrator/internal/model"
)

func TestValidateBatchDetectsDuplicates(t *testing.T) {
	tasks := []model.AtomicTask{
		{ID: "a", Title: "Implement user login endpoint", EstimatedHours: 2, FilePaths: []string{"a.go"}, AcceptanceCriteria: []string{"ok"}},
		{ID: "b", Title: "Implement user login endpoint handler", EstimatedHours: 2, FilePaths: []string{"b.go"}, AcceptanceCriteria: []string{"ok"}},
	}
	result := ValidateBatch(tasks, DefaultAtomicityConfig())
	if len(result.Duplicates) == 0 {
		t.Fatal("expected at least one duplicate pair")
	}
}

func TestValidateBatchComputesTotalEffortAndSkills(t *testing.T) {
	tasks := []model.AtomicTask{
		{ID: "a", Title: "A", EstimatedHours: 2, Metadata: model.TaskMetadata{Tags: []string{"go"}}},
		{ID: "b", Title: "B", EstimatedHours: 3, Metadata: model.TaskMetadata{Tags: []string{"go", "sql"}}},
	}
	result := ValidateBatch(tasks, DefaultAtomicityConfig())
	if result.TotalEffort != 5 {
		t.Fatalf("TotalEffort = %v, want 5", result.TotalEffort)
	}
	if result.SkillDistribution["go"] != 2 || result.SkillDistribution["sql"] != 1 {
		t.Fatalf("unexpected skill distribution: %+v", result.SkillDistribution)
	}
}

func TestValidateBatchFlagsOutOfRangeSize(t *testing.T) {
	tasks := []model.AtomicTask{{ID: "a", Title: "Solo task", EstimatedHours: 1}}
	result := ValidateBatch(tasks, DefaultAtomicityConfig())
	found := false
	for _, r := range result.Recommendations {
		if r == "batch size is outside the expected 2-10 child task range" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected out-of-range recommendation, got %+v", result.Recommendations)
	}
}
