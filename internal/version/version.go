// Package version exposes build metadata stamped in at link time.
package version

import (
	"fmt"
	"runtime"
)

// Build information set by the compiler via -ldflags.
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// FullVersion returns the full version string including git commit and build time.
func FullVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s, %s)", Version, GitCommit, BuildTime, GoVersion)
}

// UserAgent returns a string suitable for the orchestrator's outbound HTTP clients.
func UserAgent() string {
	return fmt.Sprintf("orchestrator/%s", Version)
}
