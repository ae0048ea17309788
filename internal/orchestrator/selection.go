// Package orchestrator implements the Agent Orchestrator (C8): agent
// selection, task execution delivery, cancellation, load balancing, and
// completion prediction (spec §4.8).
package orchestrator

import (
	"sort"

	"github.com/taskforge/orchestrator/internal/model"
)

// Weights are the three selection-score weights (spec §4.8).
type Weights struct {
	Capability   float64
	Performance  float64
	Availability float64
}

// DefaultWeights matches spec §4.8's stated default.
func DefaultWeights() Weights {
	return Weights{Capability: 0.4, Performance: 0.3, Availability: 0.3}
}

// Strategy picks one agent id from candidates for task, or returns
// ("", ErrNoAgent) when none qualify.
type Strategy func(agents []model.Agent, task model.AtomicTask, weights Weights) (string, error)

// Strategies is the registry of pure selection strategies keyed by
// name, matching spec §4.8's fixed set.
var Strategies = map[string]Strategy{
	"round_robin":       RoundRobin,
	"least_loaded":      LeastLoaded,
	"capability_first":  CapabilityFirst,
	"intelligent_hybrid": IntelligentHybrid,
}

const DefaultStrategy = "intelligent_hybrid"

// eligible filters out offline, error, and full agents (spec §4.8).
func eligible(agents []model.Agent) []model.Agent {
	var out []model.Agent
	for _, a := range agents {
		if a.Status == model.AgentOffline || a.Status == model.AgentError {
			continue
		}
		if len(a.TaskQueue) >= a.Config.MaxConcurrent && a.Config.MaxConcurrent > 0 {
			continue
		}
		out = append(out, a)
	}
	return out
}

func oldestFirst(agents []model.Agent) {
	sort.SliceStable(agents, func(i, j int) bool {
		return agents[i].Performance.LastActive.Before(agents[j].Performance.LastActive)
	})
}

// RoundRobin picks the eligible agent with the oldest lastActiveAt.
func RoundRobin(agents []model.Agent, _ model.AtomicTask, _ Weights) (string, error) {
	cand := eligible(agents)
	if len(cand) == 0 {
		return "", ErrNoAgent
	}
	oldestFirst(cand)
	return cand[0].ID, nil
}

// LeastLoaded picks the eligible agent with the lowest current queue
// depth relative to its ceiling.
func LeastLoaded(agents []model.Agent, _ model.AtomicTask, _ Weights) (string, error) {
	cand := eligible(agents)
	if len(cand) == 0 {
		return "", ErrNoAgent
	}
	sort.SliceStable(cand, func(i, j int) bool {
		li, lj := loadRatio(cand[i]), loadRatio(cand[j])
		if li != lj {
			return li < lj
		}
		return cand[i].Performance.LastActive.Before(cand[j].Performance.LastActive)
	})
	return cand[0].ID, nil
}

// CapabilityFirst picks the eligible agent with the highest capability
// match, breaking ties by oldest lastActiveAt.
func CapabilityFirst(agents []model.Agent, task model.AtomicTask, _ Weights) (string, error) {
	cand := eligible(agents)
	if len(cand) == 0 {
		return "", ErrNoAgent
	}
	required := requiredSkills(task)
	sort.SliceStable(cand, func(i, j int) bool {
		ci, cj := capabilityMatch(cand[i], required), capabilityMatch(cand[j], required)
		if ci != cj {
			return ci > cj
		}
		return cand[i].Performance.LastActive.Before(cand[j].Performance.LastActive)
	})
	return cand[0].ID, nil
}

// IntelligentHybrid ranks eligible agents by the weighted sum of
// capability match, performance, and availability (spec §4.8's default
// strategy).
func IntelligentHybrid(agents []model.Agent, task model.AtomicTask, weights Weights) (string, error) {
	cand := eligible(agents)
	if len(cand) == 0 {
		return "", ErrNoAgent
	}
	required := requiredSkills(task)

	type scored struct {
		agent model.Agent
		score float64
	}
	scores := make([]scored, 0, len(cand))
	for _, a := range cand {
		scores = append(scores, scored{agent: a, score: weightedScore(a, required, weights)})
	}
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].agent.Performance.LastActive.Before(scores[j].agent.Performance.LastActive)
	})
	return scores[0].agent.ID, nil
}

func weightedScore(a model.Agent, required []string, w Weights) float64 {
	return w.Capability*capabilityMatch(a, required) +
		w.Performance*performanceScore(a) +
		w.Availability*availabilityScore(a)
}

func requiredSkills(task model.AtomicTask) []string {
	return task.Metadata.Tags
}

func capabilityMatch(a model.Agent, required []string) float64 {
	if len(required) == 0 {
		return 1
	}
	capSet := make(map[string]struct{}, len(a.Capabilities))
	for _, c := range a.Capabilities {
		capSet[c] = struct{}{}
	}
	matched := 0
	for _, r := range required {
		if _, ok := capSet[r]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(required))
}

func performanceScore(a model.Agent) float64 {
	successRate := clamp01(a.Performance.SuccessRate)
	if a.Performance.AvgCompletionMS <= 0 {
		return successRate
	}
	inverseSpeed := 1.0 / (1.0 + float64(a.Performance.AvgCompletionMS)/60000.0)
	return clamp01(successRate * inverseSpeed)
}

func availabilityScore(a model.Agent) float64 {
	if a.Config.MaxConcurrent <= 0 {
		return 1
	}
	return clamp01(1 - loadRatio(a))
}

func loadRatio(a model.Agent) float64 {
	if a.Config.MaxConcurrent <= 0 {
		return 0
	}
	return float64(len(a.TaskQueue)) / float64(a.Config.MaxConcurrent)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// FindBestAgent runs the named strategy, defaulting to intelligent_hybrid.
func FindBestAgent(strategyName string, agents []model.Agent, task model.AtomicTask, weights Weights) (string, error) {
	strategy, ok := Strategies[strategyName]
	if !ok {
		strategy = IntelligentHybrid
	}
	return strategy(agents, task, weights)
}
