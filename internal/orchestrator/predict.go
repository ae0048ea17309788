package orchestrator

import (
	"time"

	"github.com/taskforge/orchestrator/internal/model"
)

// CompletionPrediction estimates how long a task will take a given
// agent, with a confidence derived from the agent's sample count
// (spec §4.8's predictive operation).
type CompletionPrediction struct {
	EstimatedDuration time.Duration
	Confidence        float64
}

const confidenceSaturationSamples = 20

// PredictTaskCompletion blends the agent's historical average
// completion time with the task's own estimate; confidence grows with
// the agent's completed-task count, saturating at
// confidenceSaturationSamples.
func PredictTaskCompletion(agent model.Agent, task model.AtomicTask) CompletionPrediction {
	estimateFromTask := time.Duration(task.EstimatedHours * float64(time.Hour))

	if agent.Performance.TasksCompleted == 0 || agent.Performance.AvgCompletionMS == 0 {
		return CompletionPrediction{EstimatedDuration: estimateFromTask, Confidence: 0.1}
	}

	historical := time.Duration(agent.Performance.AvgCompletionMS) * time.Millisecond
	blended := (historical + estimateFromTask) / 2

	confidence := float64(agent.Performance.TasksCompleted) / confidenceSaturationSamples
	if confidence > 1 {
		confidence = 1
	}
	return CompletionPrediction{EstimatedDuration: blended, Confidence: confidence}
}
