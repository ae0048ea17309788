package orchestrator

import "errors"

var (
	// ErrNoAgent is returned by a Strategy when no eligible agent exists.
	ErrNoAgent = errors.New("orchestrator: no eligible agent")
	// ErrTaskNotFound is returned when executeTask is given an unknown task.
	ErrTaskNotFound = errors.New("orchestrator: task not found")
	// ErrCyclicDependencies guards against executing a task whose
	// dependencies are not satisfied and not waived.
	ErrCyclicDependencies = errors.New("orchestrator: dependencies not satisfied")
	// ErrExecutionNotFound is returned by CancelExecution for an unknown id.
	ErrExecutionNotFound = errors.New("orchestrator: execution not found")
)
