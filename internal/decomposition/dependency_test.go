package decomposition

import (
	"testing"

	"github.com/taskforge/orchestrator/internal/model"
)

func TestInferDependenciesModelBeforeConsumer(t *testing.T) {
	tasks := []model.AtomicTask{
		{ID: "model", Title: "Create user model", EpicID: "e1", Type: model.TaskTypeDevelopment},
		{ID: "route", Title: "Add registration route", EpicID: "e1", Type: model.TaskTypeDevelopment},
	}
	suggestions := InferDependencies(tasks, 0.7)
	found := false
	for _, s := range suggestions {
		if s.From == "route" && s.To == "model" && s.Applied {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected applied route->model suggestion, got %+v", suggestions)
	}
}

func TestInferDependenciesImplementationBeforeTest(t *testing.T) {
	tasks := []model.AtomicTask{
		{ID: "impl", Title: "Implement registration", EpicID: "e1", Type: model.TaskTypeDevelopment},
		{ID: "test", Title: "Test registration", EpicID: "e1", Type: model.TaskTypeTesting},
	}
	suggestions := InferDependencies(tasks, 0.7)
	found := false
	for _, s := range suggestions {
		if s.From == "test" && s.To == "impl" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected test->impl suggestion, got %+v", suggestions)
	}
}

func TestInferDependenciesSharedFileCollision(t *testing.T) {
	tasks := []model.AtomicTask{
		{ID: "a", Title: "Task A", FilePaths: []string{"shared.go"}},
		{ID: "b", Title: "Task B", FilePaths: []string{"shared.go"}},
	}
	suggestions := InferDependencies(tasks, 0.7)
	found := false
	for _, s := range suggestions {
		if s.From == "b" && s.To == "a" && s.Kind == model.DependencyTaskOrder {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected shared-file collision suggestion, got %+v", suggestions)
	}
}

func TestInferDependenciesBelowThresholdNotApplied(t *testing.T) {
	tasks := []model.AtomicTask{
		{ID: "a", Title: "Task A", FilePaths: []string{"shared.go"}},
		{ID: "b", Title: "Task B", FilePaths: []string{"shared.go"}},
	}
	suggestions := InferDependencies(tasks, 0.99)
	for _, s := range suggestions {
		if s.Applied {
			t.Fatalf("did not expect any applied suggestion at threshold 0.99, got %+v", s)
		}
	}
}
