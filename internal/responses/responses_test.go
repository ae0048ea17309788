package responses

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/taskforge/orchestrator/internal/agents"
	"github.com/taskforge/orchestrator/internal/jobs"
	"github.com/taskforge/orchestrator/internal/model"
	"github.com/taskforge/orchestrator/internal/notify"
)

type fakeTaskStore struct {
	tasks   map[string]model.AtomicTask
	updates []model.TaskStatus
	failUpdate bool
}

func (f *fakeTaskStore) GetTask(ctx context.Context, taskID string) (model.AtomicTask, error) {
	t, ok := f.tasks[taskID]
	if !ok {
		return model.AtomicTask{}, errors.New("not found")
	}
	return t, nil
}

func (f *fakeTaskStore) UpdateTaskCompletion(ctx context.Context, taskID string, status model.TaskStatus, metadata model.TaskMetadata) error {
	if f.failUpdate {
		return errors.New("storage unavailable")
	}
	f.updates = append(f.updates, status)
	return nil
}

type fakeAssignments struct {
	assignment model.Assignment
	err        error
}

func (f *fakeAssignments) GetAssignment(ctx context.Context, taskID string) (model.Assignment, error) {
	return f.assignment, f.err
}

func newTestProcessor(t *testing.T, agentID, taskID string) (*Processor, *fakeTaskStore, *agents.Registry, *jobs.Registry) {
	t.Helper()
	reg := agents.New(10, nil)
	if err := reg.Register(model.Agent{ID: agentID, Status: model.AgentBusy, Config: model.AgentConfig{MaxConcurrent: 2}}, false); err != nil {
		t.Fatal(err)
	}
	_ = reg.AddTask(agentID, taskID)
	store := &fakeTaskStore{tasks: map[string]model.AtomicTask{taskID: {ID: taskID}}}
	jobReg := jobs.New(time.Minute)
	bus := notify.New(4, nil)
	assignments := &fakeAssignments{assignment: model.Assignment{TaskID: taskID, AgentID: agentID}}
	p := New(store, assignments, reg, jobReg, bus, nil)
	return p, store, reg, jobReg
}

func validResponse(agentID, taskID string) model.AgentResponse {
	return model.AgentResponse{
		AgentID:     agentID,
		TaskID:      taskID,
		Status:      model.ResponseDone,
		Body:        "done",
		SubmittedAt: time.Now(),
	}
}

func TestProcessRejectsMissingAgent(t *testing.T) {
	p, _, _, _ := newTestProcessor(t, "a1", "t1")
	resp := validResponse("", "t1")
	if _, err := p.Process(context.Background(), resp); err != ErrUnknownAgent {
		t.Fatalf("expected ErrUnknownAgent, got %v", err)
	}
}

func TestProcessRejectsUnknownAgent(t *testing.T) {
	p, _, _, _ := newTestProcessor(t, "a1", "t1")
	resp := validResponse("ghost", "t1")
	if _, err := p.Process(context.Background(), resp); err != ErrUnknownAgent {
		t.Fatalf("expected ErrUnknownAgent, got %v", err)
	}
}

func TestProcessRejectsInvalidStatus(t *testing.T) {
	p, _, _, _ := newTestProcessor(t, "a1", "t1")
	resp := validResponse("a1", "t1")
	resp.Status = "BOGUS"
	if _, err := p.Process(context.Background(), resp); err != ErrInvalidStatus {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestProcessRejectsEmptyBody(t *testing.T) {
	p, _, _, _ := newTestProcessor(t, "a1", "t1")
	resp := validResponse("a1", "t1")
	resp.Body = ""
	if _, err := p.Process(context.Background(), resp); err != ErrEmptyBody {
		t.Fatalf("expected ErrEmptyBody, got %v", err)
	}
}

func TestProcessRejectsNonOwningAgent(t *testing.T) {
	reg := agents.New(10, nil)
	_ = reg.Register(model.Agent{ID: "a1", Status: model.AgentBusy, Config: model.AgentConfig{MaxConcurrent: 2}}, false)
	_ = reg.Register(model.Agent{ID: "a2", Status: model.AgentBusy, Config: model.AgentConfig{MaxConcurrent: 2}}, false)
	store := &fakeTaskStore{tasks: map[string]model.AtomicTask{"t1": {ID: "t1"}}}
	jobReg := jobs.New(time.Minute)
	bus := notify.New(4, nil)
	assignments := &fakeAssignments{assignment: model.Assignment{TaskID: "t1", AgentID: "a1"}}
	p := New(store, assignments, reg, jobReg, bus, nil)

	resp := validResponse("a2", "t1")
	if _, err := p.Process(context.Background(), resp); err != ErrNotOwner {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
}

func TestProcessPersistsHistoryAndOverwritesOnResubmit(t *testing.T) {
	p, _, _, _ := newTestProcessor(t, "a1", "t1")
	first := validResponse("a1", "t1")
	first.Body = "first attempt"
	if _, err := p.Process(context.Background(), first); err != nil {
		t.Fatal(err)
	}
	second := validResponse("a1", "t1")
	second.Body = "second attempt"
	if _, err := p.Process(context.Background(), second); err != nil {
		t.Fatal(err)
	}
	got, ok := p.History("t1")
	if !ok || got.Body != "second attempt" {
		t.Fatalf("expected history overwritten with second attempt, got %+v ok=%v", got, ok)
	}
}

func TestProcessMapsStatusToTaskStatus(t *testing.T) {
	cases := []struct {
		status model.ResponseStatus
		want   model.TaskStatus
	}{
		{model.ResponseDone, model.TaskCompleted},
		{model.ResponseError, model.TaskFailed},
		{model.ResponsePartial, model.TaskInProgress},
	}
	for _, c := range cases {
		p, store, _, _ := newTestProcessor(t, "a1", "t1")
		resp := validResponse("a1", "t1")
		resp.Status = c.status
		result, err := p.Process(context.Background(), resp)
		if err != nil {
			t.Fatal(err)
		}
		if result.TaskStatus != c.want {
			t.Fatalf("status %s: got task status %s, want %s", c.status, result.TaskStatus, c.want)
		}
		if len(store.updates) != 1 || store.updates[0] != c.want {
			t.Fatalf("status %s: storage not updated with %s", c.status, c.want)
		}
	}
}

func TestProcessIsBestEffortOnStorageFailure(t *testing.T) {
	p, store, _, _ := newTestProcessor(t, "a1", "t1")
	store.failUpdate = true
	resp := validResponse("a1", "t1")
	result, err := p.Process(context.Background(), resp)
	if err != nil {
		t.Fatalf("expected Process to succeed despite storage failure, got %v", err)
	}
	if len(result.Errors) == 0 {
		t.Fatal("expected storage failure recorded in result errors")
	}
}

func TestProcessClosesJobOnTerminalStatus(t *testing.T) {
	p, _, _, jobReg := newTestProcessor(t, "a1", "t1")
	jobID := jobReg.Create("execute_task", nil)
	p.RegisterJob("t1", jobID)

	resp := validResponse("a1", "t1")
	if _, err := p.Process(context.Background(), resp); err != nil {
		t.Fatal(err)
	}
	job, err := jobReg.Get(jobID)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != model.JobCompleted {
		t.Fatalf("expected job completed, got %s", job.Status)
	}
}

func TestProcessRemovesTaskFromQueueAndFreesAgent(t *testing.T) {
	p, _, reg, _ := newTestProcessor(t, "a1", "t1")
	resp := validResponse("a1", "t1")
	if _, err := p.Process(context.Background(), resp); err != nil {
		t.Fatal(err)
	}
	if reg.Length("a1") != 0 {
		t.Fatalf("expected task removed from queue, length=%d", reg.Length("a1"))
	}
	agent, err := reg.Get("a1")
	if err != nil {
		t.Fatal(err)
	}
	if agent.Status != model.AgentIdle {
		t.Fatalf("expected agent idle after completion, got %s", agent.Status)
	}
}

func TestProcessBroadcastsTaskCompleted(t *testing.T) {
	reg := agents.New(10, nil)
	_ = reg.Register(model.Agent{ID: "a1", Status: model.AgentBusy, SessionID: "sess-1", Config: model.AgentConfig{MaxConcurrent: 2}}, false)
	_ = reg.AddTask("a1", "t1")
	store := &fakeTaskStore{tasks: map[string]model.AtomicTask{"t1": {ID: "t1"}}}
	jobReg := jobs.New(time.Minute)
	bus := notify.New(4, nil)

	received := make(chan notify.Frame, 8)
	writer := &recordingWriter{onWrite: func(f notify.Frame) { received <- f }}
	if err := bus.Register("sess-1", writer, nil); err != nil {
		t.Fatal(err)
	}

	assignments := &fakeAssignments{assignment: model.Assignment{TaskID: "t1", AgentID: "a1"}}
	p := New(store, assignments, reg, jobReg, bus, nil)

	resp := validResponse("a1", "t1")
	resp.CompletionDetails = model.CompletionDetails{FilesModified: []string{"a.go"}, Duration: 2 * time.Second}
	if _, err := p.Process(context.Background(), resp); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(time.Second)
	for {
		select {
		case f := <-received:
			event, payload := splitFrame(t, f)
			switch event {
			case "taskCompleted":
				if payload["agentId"] != "a1" || payload["taskId"] != "t1" {
					t.Fatalf("unexpected taskCompleted identifiers: %+v", payload)
				}
				if payload["success"] != true {
					t.Fatalf("expected success=true, got %+v", payload)
				}
				if payload["executionTime"] != float64(2) {
					t.Fatalf("expected executionTime=2, got %+v", payload["executionTime"])
				}
				if files, ok := payload["filesModified"].([]any); !ok || len(files) != 1 || files[0] != "a.go" {
					t.Fatalf("expected filesModified=[a.go], got %+v", payload["filesModified"])
				}
				if _, ok := payload["completedAt"]; !ok {
					t.Fatal("expected completedAt field")
				}
			case "responseReceived":
				if payload["taskId"] != "t1" || payload["acknowledged"] != true || payload["nextAction"] != "ready_for_new_task" {
					t.Fatalf("unexpected responseReceived payload: %+v", payload)
				}
				return
			}
		case <-deadline:
			t.Fatal("expected targeted responseReceived frame to be sent to the session")
		}
	}
}

func splitFrame(t *testing.T, f notify.Frame) (string, map[string]any) {
	t.Helper()
	raw := string(f)
	const eventPrefix = "event: "
	const dataMarker = "\ndata: "
	idx := strings.Index(raw, dataMarker)
	if !strings.HasPrefix(raw, eventPrefix) || idx < 0 {
		t.Fatalf("malformed frame: %q", raw)
	}
	event := raw[len(eventPrefix):idx]
	body := strings.TrimSuffix(raw[idx+len(dataMarker):], "\n\n")
	var payload map[string]any
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		t.Fatalf("frame payload not JSON: %v", err)
	}
	return event, payload
}

type recordingWriter struct {
	onWrite func(notify.Frame)
}

func (w *recordingWriter) Write(f notify.Frame) error {
	if w.onWrite != nil {
		w.onWrite(f)
	}
	return nil
}

func (w *recordingWriter) Close() error { return nil }
