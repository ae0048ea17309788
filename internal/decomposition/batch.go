package decomposition

import (
	"fmt"
	"sort"

	"github.com/taskforge/orchestrator/internal/model"
)

const duplicateSimilarityThreshold = 0.8

// DuplicatePair reports two candidate tasks whose titles are near
// duplicates (spec §4.7.5).
type DuplicatePair struct {
	TaskA      string
	TaskB      string
	Similarity float64
}

// TaskAtomicity pairs a task id with its atomicity verdict.
type TaskAtomicity struct {
	TaskID string
	Result AtomicityResult
}

// BatchValidation is the per-task and cross-task report produced by
// validating a candidate batch before it is committed.
type BatchValidation struct {
	PerTask         []TaskAtomicity
	Duplicates      []DuplicatePair
	TotalEffort     float64
	SkillDistribution map[string]int
	Recommendations []string
}

// ValidateBatch checks candidate tasks for atomicity, near-duplicate
// titles, aggregate effort, and skill-tag distribution.
func ValidateBatch(tasks []model.AtomicTask, cfg AtomicityConfig) BatchValidation {
	result := BatchValidation{SkillDistribution: make(map[string]int)}

	for _, t := range tasks {
		result.PerTask = append(result.PerTask, TaskAtomicity{TaskID: t.ID, Result: CheckAtomicity(t, cfg)})
		result.TotalEffort += t.EstimatedHours
		for _, tag := range t.Metadata.Tags {
			result.SkillDistribution[normalizeTerm(tag)]++
		}
	}

	for i := 0; i < len(tasks); i++ {
		for j := i + 1; j < len(tasks); j++ {
			sim := jaccardSimilarity(tasks[i].Title, tasks[j].Title)
			if sim >= duplicateSimilarityThreshold {
				result.Duplicates = append(result.Duplicates, DuplicatePair{
					TaskA: tasks[i].ID, TaskB: tasks[j].ID, Similarity: sim,
				})
			}
		}
	}
	sort.Slice(result.Duplicates, func(i, j int) bool {
		return result.Duplicates[i].TaskA < result.Duplicates[j].TaskA
	})

	if len(result.Duplicates) > 0 {
		result.Recommendations = append(result.Recommendations,
			fmt.Sprintf("merge or differentiate %d near-duplicate task pair(s)", len(result.Duplicates)))
	}
	nonAtomic := 0
	for _, pt := range result.PerTask {
		if !pt.Result.Atomic {
			nonAtomic++
		}
	}
	if nonAtomic > 0 {
		result.Recommendations = append(result.Recommendations,
			fmt.Sprintf("%d task(s) are not yet atomic and should be decomposed further", nonAtomic))
	}
	if len(tasks) > 0 && (len(tasks) < 2 || len(tasks) > 10) {
		result.Recommendations = append(result.Recommendations,
			"batch size is outside the expected 2-10 child task range")
	}

	return result
}
