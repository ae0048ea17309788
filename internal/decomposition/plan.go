package decomposition

import (
	"errors"
	"sort"

	"github.com/taskforge/orchestrator/internal/model"
)

// ErrCycle is returned when a dependency graph contains a cycle.
var ErrCycle = errors.New("decomposition: dependency graph contains a cycle")

// HasCycle reports whether graph contains a cycle, via DFS coloring.
func HasCycle(graph model.DependencyGraph) bool {
	adj := adjacency(graph)
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(graph.TaskIDs))
	var visit func(node string) bool
	visit = func(node string) bool {
		color[node] = gray
		for _, next := range adj[node] {
			switch color[next] {
			case gray:
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		color[node] = black
		return false
	}
	for _, id := range graph.TaskIDs {
		if color[id] == white {
			if visit(id) {
				return true
			}
		}
	}
	return false
}

// adjacency builds edges under a "from depends on to" reading: an edge
// {From: consumer, To: dependency} means consumer must
// run after dependency, so the DAG walks dependency -> consumer.
func adjacency(graph model.DependencyGraph) map[string][]string {
	adj := make(map[string][]string, len(graph.TaskIDs))
	for _, dep := range graph.Dependencies {
		adj[dep.ToTask] = append(adj[dep.ToTask], dep.FromTask)
	}
	return adj
}

// ExecutionPlan is the topologically ordered set of parallel batches
// (spec §4.7.6): batch k holds every task whose remaining in-degree is
// zero after batches 0..k-1 have completed.
type ExecutionPlan struct {
	Batches [][]string
}

// BuildExecutionPlan computes batches for graph, returning ErrCycle if
// the graph cannot be fully ordered.
func BuildExecutionPlan(graph model.DependencyGraph) (ExecutionPlan, error) {
	inDegree := make(map[string]int, len(graph.TaskIDs))
	for _, id := range graph.TaskIDs {
		inDegree[id] = 0
	}
	for _, dep := range graph.Dependencies {
		if _, ok := inDegree[dep.FromTask]; ok {
			inDegree[dep.FromTask]++
		}
	}
	dependents := make(map[string][]string)
	for _, dep := range graph.Dependencies {
		dependents[dep.ToTask] = append(dependents[dep.ToTask], dep.FromTask)
	}

	remaining := len(graph.TaskIDs)
	var plan ExecutionPlan
	processed := make(map[string]bool, remaining)

	for remaining > 0 {
		var batch []string
		for _, id := range graph.TaskIDs {
			if !processed[id] && inDegree[id] == 0 {
				batch = append(batch, id)
			}
		}
		if len(batch) == 0 {
			return ExecutionPlan{}, ErrCycle
		}
		sort.Strings(batch)
		plan.Batches = append(plan.Batches, batch)
		for _, id := range batch {
			processed[id] = true
			remaining--
			for _, dep := range dependents[id] {
				inDegree[dep]--
			}
		}
	}
	return plan, nil
}
