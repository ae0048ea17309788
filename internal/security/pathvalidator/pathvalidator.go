// Package pathvalidator validates and canonicalizes filesystem paths
// supplied by agents and API callers against an allow-list of root
// directories, rejecting traversal, malformed, and (optionally) symlinked
// paths before the storage engine ever touches disk.
package pathvalidator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/taskforge/orchestrator/internal/logging"
)

// Violation classifies why a path was rejected.
type Violation string

const (
	ViolationNone      Violation = ""
	ViolationTraversal Violation = "traversal"
	ViolationWhitelist Violation = "whitelist"
	ViolationSymlink   Violation = "symlink"
	ViolationMalformed Violation = "malformed"
)

const maxPathLength = 4096

var reservedChars = []rune{'<', '>', '|', '?', '*', '"'}

// Config controls path validation policy (spec §4.2, §6.5 security.*).
type Config struct {
	AllowedDirectories []string
	AllowSymlinks      bool
	AllowedExtensions  []string // empty means unconstrained
}

// Result is the outcome of a validation attempt.
type Result struct {
	Canonical string
	Valid     bool
	Violation Violation
}

// Validator checks candidate paths against Config and emits an audit
// record for every decision (spec §4.2's {timestamp, session, ...} trail).
type Validator struct {
	cfg     Config
	logger  *logging.Logger
	allowed []string
}

// New builds a Validator with canonicalized allow-list roots.
func New(cfg Config, logger *logging.Logger) *Validator {
	allowed := make([]string, 0, len(cfg.AllowedDirectories))
	for _, dir := range cfg.AllowedDirectories {
		if abs, err := filepath.Abs(dir); err == nil {
			allowed = append(allowed, filepath.Clean(abs))
		}
	}
	return &Validator{cfg: cfg, logger: logger, allowed: allowed}
}

// Validate checks path for traversal, malformed bytes, reserved characters,
// home-directory references, and allow-list containment. mode is logged
// alongside the decision but does not otherwise change the rules.
func (v *Validator) Validate(ctx context.Context, path, mode string) Result {
	start := time.Now()
	res := v.validate(path)
	v.audit(ctx, path, mode, res, time.Since(start))
	return res
}

func (v *Validator) validate(path string) Result {
	if path == "" || len(path) > maxPathLength {
		return Result{Valid: false, Violation: ViolationMalformed}
	}
	for _, r := range path {
		if r == 0 || r < 0x20 {
			return Result{Valid: false, Violation: ViolationMalformed}
		}
	}
	for _, rc := range reservedChars {
		if strings.ContainsRune(path, rc) {
			return Result{Valid: false, Violation: ViolationMalformed}
		}
	}
	if strings.HasPrefix(path, "~") {
		return Result{Valid: false, Violation: ViolationMalformed}
	}
	if containsTraversalSegment(path) {
		return Result{Valid: false, Violation: ViolationTraversal}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return Result{Valid: false, Violation: ViolationMalformed}
	}
	canonical := filepath.Clean(abs)

	if len(v.allowed) > 0 && !v.withinAllowed(canonical) {
		return Result{Valid: false, Violation: ViolationWhitelist}
	}

	if !v.cfg.AllowSymlinks {
		if info, err := os.Lstat(canonical); err == nil && info.Mode()&os.ModeSymlink != 0 {
			return Result{Valid: false, Violation: ViolationSymlink}
		}
	}

	if len(v.cfg.AllowedExtensions) > 0 {
		ext := strings.ToLower(filepath.Ext(canonical))
		ok := false
		for _, allowedExt := range v.cfg.AllowedExtensions {
			if strings.ToLower(allowedExt) == ext {
				ok = true
				break
			}
		}
		if !ok {
			return Result{Valid: false, Violation: ViolationWhitelist}
		}
	}

	return Result{Canonical: canonical, Valid: true}
}

func containsTraversalSegment(path string) bool {
	for _, seg := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return true
		}
	}
	return false
}

func (v *Validator) withinAllowed(canonical string) bool {
	for _, root := range v.allowed {
		if canonical == root || strings.HasPrefix(canonical, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// audit logs the decision without ever including the rejected path itself
// in the free-text message, per spec §4.2 ("error message contains no
// substring of the attacked path").
func (v *Validator) audit(ctx context.Context, originalPath, mode string, res Result, elapsed time.Duration) {
	if v.logger == nil {
		return
	}
	fields := map[string]interface{}{
		"mode":           mode,
		"verdict":        res.Valid,
		"elapsed_ns":     elapsed.Nanoseconds(),
		"path_length":    len(originalPath),
		"canonical_path": res.Canonical,
	}
	if res.Violation != ViolationNone {
		fields["violation_kind"] = string(res.Violation)
	}
	v.logger.LogSecurityEvent(ctx, "path_validation", fields)
}
