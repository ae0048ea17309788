package decomposition

import (
	"strings"

	"github.com/taskforge/orchestrator/internal/external"
	"github.com/taskforge/orchestrator/internal/model"
)

// ResearchDecision is the outcome of the research trigger predicate
// (spec §4.7.3).
type ResearchDecision struct {
	ShouldResearch bool
	Confidence     float64
	Reason         string
}

// ResearchConfig tunes the research trigger's thresholds.
type ResearchConfig struct {
	EffortCeilingHours float64
	HighRiskTerms      []string
	UnfamiliarTerms    []string
	NovelTechTerms     []string
}

// DefaultResearchConfig matches spec §4.7.3's stated signals.
func DefaultResearchConfig() ResearchConfig {
	return ResearchConfig{
		EffortCeilingHours: 4,
		HighRiskTerms:      []string{"critical", "high-risk", "irreversible"},
	}
}

// ShouldResearch evaluates whether task and its parsed intent warrant a
// research pass before the next decomposition iteration.
func ShouldResearch(task model.AtomicTask, intent external.Intent, summary external.CodebaseSummary, cfg ResearchConfig) ResearchDecision {
	if cfg.EffortCeilingHours <= 0 {
		cfg.EffortCeilingHours = DefaultResearchConfig().EffortCeilingHours
	}

	if unfamiliar := findUnfamiliarTerm(intent.DomainTerms, summary); unfamiliar != "" {
		return ResearchDecision{true, 0.8, "unfamiliar domain term: " + unfamiliar}
	}

	if riskLevel := strings.ToLower(intent.RiskLevel); containsAny(riskLevel, append(cfg.HighRiskTerms, "high")...) {
		return ResearchDecision{true, 0.85, "risk level flagged as high"}
	}

	if task.EstimatedHours > cfg.EffortCeilingHours*4 {
		return ResearchDecision{true, 0.7, "estimated effort exceeds 4x the atomicity ceiling"}
	}

	if novel := findNovelTech(intent.Constraints, summary); novel != "" {
		return ResearchDecision{true, 0.75, "explicit integration of novel technology: " + novel}
	}

	return ResearchDecision{ShouldResearch: false, Confidence: 0.9, Reason: "no research signal present"}
}

func findUnfamiliarTerm(terms []string, summary external.CodebaseSummary) string {
	known := make(map[string]struct{}, len(summary.Languages)+len(summary.Frameworks))
	for _, l := range summary.Languages {
		known[normalizeTerm(l)] = struct{}{}
	}
	for _, f := range summary.Frameworks {
		known[normalizeTerm(f)] = struct{}{}
	}
	for _, term := range terms {
		if _, ok := known[normalizeTerm(term)]; !ok {
			return term
		}
	}
	return ""
}

func findNovelTech(constraints []string, summary external.CodebaseSummary) string {
	known := make(map[string]struct{}, len(summary.Frameworks))
	for _, f := range summary.Frameworks {
		known[normalizeTerm(f)] = struct{}{}
	}
	for _, c := range constraints {
		if !containsAny(c, "integrate", "adopt", "migrate to") {
			continue
		}
		if _, ok := known[normalizeTerm(c)]; !ok {
			return c
		}
	}
	return ""
}
