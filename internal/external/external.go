// Package external declares the collaborator boundaries this module
// depends on but does not implement: intent parsing, codebase
// summarization, LLM completion, config loading, and markdown
// formatting (spec §6.6). Callers supply concrete implementations.
package external

import "context"

// Intent is a structured request produced from free-form text.
type Intent struct {
	Summary      string            `json:"summary"`
	Goal         string            `json:"goal"`
	Constraints  []string          `json:"constraints,omitempty"`
	RiskLevel    string            `json:"risk_level,omitempty"`
	DomainTerms  []string          `json:"domain_terms,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty"`
}

// IntentParser turns a natural-language request into a structured intent.
type IntentParser interface {
	Parse(ctx context.Context, text string) (Intent, error)
}

// CodebaseSummary describes a project's stack and layout for
// decomposition context.
type CodebaseSummary struct {
	Languages  []string `json:"languages"`
	Frameworks []string `json:"frameworks"`
	Files      []string `json:"files,omitempty"`
	Notes      string   `json:"notes,omitempty"`
}

// CodeMapper summarizes a codebase for decomposition context.
type CodeMapper interface {
	Summarize(ctx context.Context, rootDir string) (CodebaseSummary, error)
}

// CompletionOptions configures a single Completer call.
type CompletionOptions struct {
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	StopWords   []string `json:"stop_words,omitempty"`
}

// Completer is an opaque text-completion service (the LLM boundary).
type Completer interface {
	Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error)
}

// ConfigLoader reads external configuration sources the core does not
// own the format of.
type ConfigLoader interface {
	Load(ctx context.Context, path string) (map[string]interface{}, error)
}

// MarkdownFormatter renders domain entities as markdown for external
// consumption (e.g. PR descriptions, reports).
type MarkdownFormatter interface {
	Format(ctx context.Context, title string, sections map[string]string) (string, error)
}
