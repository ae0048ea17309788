package memstore

import (
	"context"
	"testing"

	"github.com/taskforge/orchestrator/internal/model"
	"github.com/taskforge/orchestrator/internal/storage"
)

func TestCreateAndGetProject(t *testing.T) {
	e := New()
	ctx := context.Background()
	p, err := e.CreateProject(ctx, model.Project{ID: "p1", Name: "demo"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := e.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "demo" {
		t.Fatalf("got %+v", got)
	}
}

func TestCreateProjectRejectsDuplicate(t *testing.T) {
	e := New()
	ctx := context.Background()
	_, _ = e.CreateProject(ctx, model.Project{ID: "p1"})
	if _, err := e.CreateProject(ctx, model.Project{ID: "p1"}); !storage.IsKind(err, storage.KindAlreadyExists) {
		t.Fatalf("expected already_exists, got %v", err)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	e := New()
	if _, err := e.GetTask(context.Background(), "missing"); !storage.IsKind(err, storage.KindNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestDependenciesSatisfiedTrueWhenNoDependencies(t *testing.T) {
	e := New()
	ctx := context.Background()
	_, _ = e.CreateTask(ctx, model.AtomicTask{ID: "t1", Status: model.TaskPending})
	ok, err := e.DependenciesSatisfied(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected satisfied with no dependencies")
	}
}

func TestDependenciesSatisfiedFalseWhenPrerequisiteIncomplete(t *testing.T) {
	e := New()
	ctx := context.Background()
	_, _ = e.CreateTask(ctx, model.AtomicTask{ID: "parent", Status: model.TaskInProgress})
	_, _ = e.CreateTask(ctx, model.AtomicTask{ID: "child", Status: model.TaskPending})
	_, _ = e.CreateDependency(ctx, model.Dependency{ID: "d1", FromTask: "parent", ToTask: "child", Strength: model.StrengthRequired})

	ok, err := e.DependenciesSatisfied(ctx, "child")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected unsatisfied while parent is incomplete")
	}
}

func TestDependenciesSatisfiedTrueOnceCompleted(t *testing.T) {
	e := New()
	ctx := context.Background()
	_, _ = e.CreateTask(ctx, model.AtomicTask{ID: "parent", Status: model.TaskCompleted})
	_, _ = e.CreateTask(ctx, model.AtomicTask{ID: "child", Status: model.TaskPending})
	_, _ = e.CreateDependency(ctx, model.Dependency{ID: "d1", FromTask: "parent", ToTask: "child", Strength: model.StrengthRequired})

	ok, err := e.DependenciesSatisfied(ctx, "child")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected satisfied once parent completes")
	}
}

func TestDependenciesSatisfiedIgnoresOptionalStrength(t *testing.T) {
	e := New()
	ctx := context.Background()
	_, _ = e.CreateTask(ctx, model.AtomicTask{ID: "parent", Status: model.TaskPending})
	_, _ = e.CreateTask(ctx, model.AtomicTask{ID: "child", Status: model.TaskPending})
	_, _ = e.CreateDependency(ctx, model.Dependency{ID: "d1", FromTask: "parent", ToTask: "child", Strength: model.StrengthOptional})

	ok, err := e.DependenciesSatisfied(ctx, "child")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected optional dependency to not block")
	}
}

func TestUpdateTaskCompletionSetsStatusAndMetadata(t *testing.T) {
	e := New()
	ctx := context.Background()
	_, _ = e.CreateTask(ctx, model.AtomicTask{ID: "t1", Status: model.TaskInProgress})

	if err := e.UpdateTaskCompletion(ctx, "t1", model.TaskCompleted, model.TaskMetadata{AgentResponse: "done"}); err != nil {
		t.Fatal(err)
	}
	got, err := e.GetTask(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.TaskCompleted || got.Metadata.AgentResponse != "done" {
		t.Fatalf("got %+v", got)
	}
}

func TestQueryTasksFiltersByProjectAndStatus(t *testing.T) {
	e := New()
	ctx := context.Background()
	_, _ = e.CreateTask(ctx, model.AtomicTask{ID: "t1", ProjectID: "p1", Status: model.TaskPending})
	_, _ = e.CreateTask(ctx, model.AtomicTask{ID: "t2", ProjectID: "p1", Status: model.TaskCompleted})
	_, _ = e.CreateTask(ctx, model.AtomicTask{ID: "t3", ProjectID: "p2", Status: model.TaskPending})

	out, err := e.QueryTasks(ctx, storage.TaskFilter{ProjectID: "p1", Status: model.TaskPending})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].ID != "t1" {
		t.Fatalf("unexpected result: %+v", out)
	}
}

func TestSubscribeReceivesEvents(t *testing.T) {
	e := New()
	ctx := context.Background()
	var got storage.Event
	unsub := e.Subscribe(func(ev storage.Event) { got = ev })
	defer unsub()

	_, _ = e.CreateProject(ctx, model.Project{ID: "p1"})
	if got.Entity != "project" || got.Op != "create" || got.ID != "p1" {
		t.Fatalf("unexpected event: %+v", got)
	}
}

func TestWithTransactionRunsFn(t *testing.T) {
	e := New()
	ran := false
	err := e.WithTransaction(context.Background(), []string{"task:1"}, func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Fatal("expected fn to run")
	}
}

func TestStatsRecordsOperations(t *testing.T) {
	e := New()
	ctx := context.Background()
	_, _ = e.CreateProject(ctx, model.Project{ID: "p1"})
	_, _ = e.GetProject(ctx, "p1")
	_, _ = e.GetProject(ctx, "missing")

	stats := e.Stats()
	if stats["GetProject"].Count != 2 || stats["GetProject"].ErrorCount != 1 {
		t.Fatalf("unexpected stats: %+v", stats["GetProject"])
	}
}
