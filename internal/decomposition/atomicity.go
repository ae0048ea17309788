package decomposition

import "github.com/taskforge/orchestrator/internal/model"

// AtomicityConfig tunes the five atomicity predicates (spec §4.7).
type AtomicityConfig struct {
	EffortCeilingHours float64
	MaxFilePaths       int
	StackTerms         []string
}

// DefaultAtomicityConfig matches the spec's stated defaults.
func DefaultAtomicityConfig() AtomicityConfig {
	return AtomicityConfig{EffortCeilingHours: 4, MaxFilePaths: 5}
}

// AtomicityResult reports which predicates held.
type AtomicityResult struct {
	Atomic              bool
	SingleConcern       bool
	WithinEffortCeiling bool
	BoundedFileSet      bool
	ConcreteAcceptance  bool
	SkillsInStack       bool
	Reasons             []string
}

// CheckAtomicity evaluates the atomicity predicates from spec §4.7.1
// against task, using cfg's thresholds. Four are inspected (effort, file
// set, acceptance criteria, skills); SingleConcern is not inspected and
// always reports true.
func CheckAtomicity(task model.AtomicTask, cfg AtomicityConfig) AtomicityResult {
	if cfg.EffortCeilingHours <= 0 {
		cfg.EffortCeilingHours = DefaultAtomicityConfig().EffortCeilingHours
	}
	if cfg.MaxFilePaths <= 0 {
		cfg.MaxFilePaths = DefaultAtomicityConfig().MaxFilePaths
	}

	res := AtomicityResult{SingleConcern: true}

	res.WithinEffortCeiling = task.EstimatedHours > 0 && task.EstimatedHours <= cfg.EffortCeilingHours
	if !res.WithinEffortCeiling {
		res.Reasons = append(res.Reasons, "effort exceeds ceiling")
	}

	res.BoundedFileSet = len(task.FilePaths) > 0 && len(task.FilePaths) <= cfg.MaxFilePaths
	if !res.BoundedFileSet {
		res.Reasons = append(res.Reasons, "file set unbounded or empty")
	}

	res.ConcreteAcceptance = len(task.AcceptanceCriteria) > 0
	if !res.ConcreteAcceptance {
		res.Reasons = append(res.Reasons, "acceptance criteria not concrete")
	}

	res.SkillsInStack = skillsWithinStack(task, cfg.StackTerms)
	if !res.SkillsInStack {
		res.Reasons = append(res.Reasons, "required skills outside project stack")
	}

	res.Atomic = res.SingleConcern && res.WithinEffortCeiling && res.BoundedFileSet &&
		res.ConcreteAcceptance && res.SkillsInStack
	return res
}

func skillsWithinStack(task model.AtomicTask, stack []string) bool {
	if len(stack) == 0 {
		return true
	}
	tags := task.Metadata.Tags
	if len(tags) == 0 {
		return true
	}
	stackSet := make(map[string]struct{}, len(stack))
	for _, s := range stack {
		stackSet[normalizeTerm(s)] = struct{}{}
	}
	for _, tag := range tags {
		if _, ok := stackSet[normalizeTerm(tag)]; !ok {
			return false
		}
	}
	return true
}
