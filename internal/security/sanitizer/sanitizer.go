// Package sanitizer scans task, epic, and project field input for
// dangerous patterns (spec §4.2 Data Sanitiser): script tags, shell
// metacharacter sequences, SQL-like fragments, and path-traversal
// substrings.
package sanitizer

import (
	"regexp"
	"strings"
)

// Pattern pairs a detector with the kind of violation it flags.
type Pattern struct {
	Name    string
	Kind    string
	Pattern *regexp.Regexp
	Mask    string
}

// Kinds of sanitizer violations. "critical" kinds mark the operation
// unsuccessful per spec §4.2; the rest are logged but non-fatal.
const (
	KindScript     = "script_injection"
	KindShell      = "shell_metacharacter"
	KindSQL        = "sql_fragment"
	KindTraversal  = "path_traversal"
	KindCredential = "credential_leak"
)

var criticalKinds = map[string]bool{
	KindScript: true,
	KindShell:  true,
	KindSQL:    true,
}

var patterns = []Pattern{
	{
		Name:    "script tag",
		Kind:    KindScript,
		Pattern: regexp.MustCompile(`(?i)<\s*script[^>]*>.*?<\s*/\s*script\s*>`),
		Mask:    "[REDACTED_SCRIPT]",
	},
	{
		Name:    "javascript protocol",
		Kind:    KindScript,
		Pattern: regexp.MustCompile(`(?i)javascript:`),
		Mask:    "[REDACTED_PROTOCOL]",
	},
	{
		Name:    "shell command substitution",
		Kind:    KindShell,
		Pattern: regexp.MustCompile("[;&|` ]\\s*(rm|curl|wget|bash|sh|nc|chmod)\\s",
		),
		Mask: "[REDACTED_SHELL]",
	},
	{
		Name:    "shell metacharacters",
		Kind:    KindShell,
		Pattern: regexp.MustCompile(`\$\([^)]*\)|` + "`[^`]*`"),
		Mask:    "[REDACTED_SHELL]",
	},
	{
		Name:    "sql keyword fragment",
		Kind:    KindSQL,
		Pattern: regexp.MustCompile(`(?i)\b(union\s+select|drop\s+table|insert\s+into|delete\s+from|--\s|;\s*--)\b`),
		Mask:    "[REDACTED_SQL]",
	},
	{
		Name:    "path traversal",
		Kind:    KindTraversal,
		Pattern: regexp.MustCompile(`(\.\./|\.\.\\)`),
		Mask:    "[REDACTED_PATH]",
	},
	{
		Name:    "bearer token",
		Kind:    KindCredential,
		Pattern: regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-\.]{20,}`),
		Mask:    "Bearer [REDACTED_TOKEN]",
	},
	{
		Name:    "private key header",
		Kind:    KindCredential,
		Pattern: regexp.MustCompile(`-----BEGIN\s+(RSA\s+)?PRIVATE\s+KEY-----[\s\S]*?-----END\s+(RSA\s+)?PRIVATE\s+KEY-----`),
		Mask:    "[REDACTED_PRIVATE_KEY]",
	},
}

// Violation records one matched pattern against the input.
type Violation struct {
	Kind     string
	Name     string
	Critical bool
}

// Result is the outcome of scanning a single field.
type Result struct {
	Sanitized  string
	Violations []Violation
}

// Scan checks input against all known patterns and returns the masked
// string plus every violation found. A critical violation does not stop
// scanning; the caller decides whether to reject the operation.
func Scan(input string) Result {
	if input == "" {
		return Result{Sanitized: input}
	}

	result := input
	var violations []Violation
	for _, p := range patterns {
		if p.Pattern.MatchString(result) {
			violations = append(violations, Violation{
				Kind:     p.Kind,
				Name:     p.Name,
				Critical: criticalKinds[p.Kind],
			})
			result = p.Pattern.ReplaceAllString(result, p.Mask)
		}
	}
	return Result{Sanitized: result, Violations: violations}
}

// HasCritical reports whether any violation in violations is critical.
func HasCritical(violations []Violation) bool {
	for _, v := range violations {
		if v.Critical {
			return true
		}
	}
	return false
}

// Fields scans every string value in a map of entity fields (task/epic/
// project payloads), returning a sanitized copy and the aggregate
// violations across all fields.
func Fields(fields map[string]interface{}) (map[string]interface{}, []Violation) {
	sanitized := make(map[string]interface{}, len(fields))
	var all []Violation
	for key, value := range fields {
		s, ok := value.(string)
		if !ok {
			sanitized[key] = value
			continue
		}
		res := Scan(s)
		sanitized[key] = res.Sanitized
		all = append(all, res.Violations...)
	}
	return sanitized, all
}

// RedactSecrets masks credential-like substrings in free text before it is
// written to logs, distinct from Scan's entity-field sanitation.
func RedactSecrets(text string) string {
	result := text
	for _, p := range patterns {
		if p.Kind != KindCredential {
			continue
		}
		result = p.Pattern.ReplaceAllString(result, p.Mask)
	}
	return result
}

// IsSensitiveKey reports whether a field name suggests sensitive content,
// used to decide whether to redact a value wholesale rather than scan it.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, kw := range []string{"password", "secret", "token", "credential", "private_key", "api_key"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
