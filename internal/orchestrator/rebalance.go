package orchestrator

import (
	"sort"

	"github.com/taskforge/orchestrator/internal/model"
)

// WorkloadImbalance reports agents whose load ratio crosses threshold
// in either direction (spec §4.8's load balancing).
type WorkloadImbalance struct {
	Overloaded  []string
	Underloaded []string
}

// DetectWorkloadImbalance partitions agents into overloaded (load ratio
// >= threshold) and underloaded (load ratio <= 1-threshold), excluding
// offline/error agents.
func DetectWorkloadImbalance(agentList []model.Agent, threshold float64) WorkloadImbalance {
	if threshold <= 0 || threshold >= 1 {
		threshold = 0.8
	}
	var result WorkloadImbalance
	for _, a := range agentList {
		if a.Status == model.AgentOffline || a.Status == model.AgentError {
			continue
		}
		ratio := loadRatio(a)
		switch {
		case ratio >= threshold:
			result.Overloaded = append(result.Overloaded, a.ID)
		case ratio <= 1-threshold:
			result.Underloaded = append(result.Underloaded, a.ID)
		}
	}
	sort.Strings(result.Overloaded)
	sort.Strings(result.Underloaded)
	return result
}

// Migration moves a still-queued task from one agent's queue to
// another's.
type Migration struct {
	TaskID   string
	FromAgent string
	ToAgent  string
}

// RebalanceWorkload computes and executes a minimal set of migrations
// moving queued (never delivered/executing) tasks from overloaded to
// underloaded agents. depsWaiting reports whether taskID still has
// unsatisfied dependencies, in which case it is skipped.
func (o *Orchestrator) RebalanceWorkload(threshold float64, depsWaiting func(taskID string) bool) []Migration {
	agentList := o.agents.List()
	imbalance := DetectWorkloadImbalance(agentList, threshold)
	if len(imbalance.Overloaded) == 0 || len(imbalance.Underloaded) == 0 {
		return nil
	}

	var migrations []Migration
	underIdx := 0
	for _, fromID := range imbalance.Overloaded {
		if underIdx >= len(imbalance.Underloaded) {
			break
		}
		queued, err := o.agents.GetTasks(fromID, 1)
		if err != nil || len(queued) == 0 {
			continue
		}
		taskID := queued[0]
		if depsWaiting != nil && depsWaiting(taskID) {
			_ = o.agents.AddTask(fromID, taskID)
			continue
		}
		toID := imbalance.Underloaded[underIdx]
		if err := o.agents.AddTask(toID, taskID); err != nil {
			_ = o.agents.AddTask(fromID, taskID)
			continue
		}
		migrations = append(migrations, Migration{TaskID: taskID, FromAgent: fromID, ToAgent: toID})
		underIdx++
	}
	return migrations
}
