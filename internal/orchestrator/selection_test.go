package orchestrator

import (
	"testing"
	"time"

	"github.com/taskforge/orchestrator/internal/model"
)

func agentFixture(id string, status model.AgentStatus, queueLen, maxConcurrent int, caps []string) model.Agent {
	return model.Agent{
		ID:           id,
		Status:       status,
		Capabilities: caps,
		TaskQueue:    make([]string, queueLen),
		Config:       model.AgentConfig{MaxConcurrent: maxConcurrent},
		Performance:  model.AgentPerformance{LastActive: time.Now()},
	}
}

func TestEligibleExcludesOfflineErrorAndFullAgents(t *testing.T) {
	agentList := []model.Agent{
		agentFixture("offline", model.AgentOffline, 0, 2, nil),
		agentFixture("errored", model.AgentError, 0, 2, nil),
		agentFixture("full", model.AgentIdle, 2, 2, nil),
		agentFixture("ok", model.AgentIdle, 0, 2, nil),
	}
	cand := eligible(agentList)
	if len(cand) != 1 || cand[0].ID != "ok" {
		t.Fatalf("expected only ok agent eligible, got %+v", cand)
	}
}

func TestRoundRobinPicksOldestLastActive(t *testing.T) {
	older := agentFixture("a1", model.AgentIdle, 0, 2, nil)
	older.Performance.LastActive = time.Now().Add(-time.Hour)
	newer := agentFixture("a2", model.AgentIdle, 0, 2, nil)

	id, err := RoundRobin([]model.Agent{newer, older}, model.AtomicTask{}, Weights{})
	if err != nil {
		t.Fatal(err)
	}
	if id != "a1" {
		t.Fatalf("RoundRobin = %s, want a1", id)
	}
}

func TestLeastLoadedPicksLowestRatio(t *testing.T) {
	busy := agentFixture("busy", model.AgentIdle, 1, 2, nil)
	idle := agentFixture("idle", model.AgentIdle, 0, 2, nil)

	id, err := LeastLoaded([]model.Agent{busy, idle}, model.AtomicTask{}, Weights{})
	if err != nil {
		t.Fatal(err)
	}
	if id != "idle" {
		t.Fatalf("LeastLoaded = %s, want idle", id)
	}
}

func TestCapabilityFirstPicksBestMatch(t *testing.T) {
	weak := agentFixture("weak", model.AgentIdle, 0, 2, []string{"go"})
	strong := agentFixture("strong", model.AgentIdle, 0, 2, []string{"go", "sql"})
	task := model.AtomicTask{Metadata: model.TaskMetadata{Tags: []string{"go", "sql"}}}

	id, err := CapabilityFirst([]model.Agent{weak, strong}, task, Weights{})
	if err != nil {
		t.Fatal(err)
	}
	if id != "strong" {
		t.Fatalf("CapabilityFirst = %s, want strong", id)
	}
}

func TestIntelligentHybridCombinesScores(t *testing.T) {
	bestAll := agentFixture("best", model.AgentIdle, 0, 4, []string{"go"})
	bestAll.Performance.SuccessRate = 1
	worst := agentFixture("worst", model.AgentIdle, 3, 4, []string{})
	worst.Performance.SuccessRate = 0.1

	task := model.AtomicTask{Metadata: model.TaskMetadata{Tags: []string{"go"}}}
	id, err := IntelligentHybrid([]model.Agent{worst, bestAll}, task, DefaultWeights())
	if err != nil {
		t.Fatal(err)
	}
	if id != "best" {
		t.Fatalf("IntelligentHybrid = %s, want best", id)
	}
}

func TestFindBestAgentReturnsErrNoAgentWhenNoneEligible(t *testing.T) {
	_, err := FindBestAgent(DefaultStrategy, []model.Agent{agentFixture("off", model.AgentOffline, 0, 2, nil)}, model.AtomicTask{}, DefaultWeights())
	if err != ErrNoAgent {
		t.Fatalf("expected ErrNoAgent, got %v", err)
	}
}

func TestFindBestAgentFallsBackToHybridForUnknownStrategy(t *testing.T) {
	a := agentFixture("a1", model.AgentIdle, 0, 2, nil)
	id, err := FindBestAgent("nonexistent", []model.Agent{a}, model.AtomicTask{}, DefaultWeights())
	if err != nil {
		t.Fatal(err)
	}
	if id != "a1" {
		t.Fatalf("FindBestAgent = %s, want a1", id)
	}
}
