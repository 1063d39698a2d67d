package version

import (
	"fmt"
	"runtime"
)

// Version information - these can be overridden at build time using ldflags
var (
	// Version is the semantic version of cmake-msvc-analyze
	Version = "v0.3.0"

	// GitCommit is the git commit hash (set at build time)
	GitCommit = "unknown"

	// BuildTime is when the binary was built (set at build time)
	BuildTime = "unknown"
)

// GetVersion returns the semantic version string
func GetVersion() string {
	return Version
}

// GetVersionWithCommit returns version with git commit info
func GetVersionWithCommit() string {
	if GitCommit != "unknown" && len(GitCommit) >= 7 {
		return fmt.Sprintf("%s (%s)", Version, GitCommit[:7])
	}
	return Version
}

// GetFullVersionString returns a comprehensive version string for CLI display
func GetFullVersionString() string {
	return fmt.Sprintf("cmake-msvc-analyze %s\nBuilt: %s\nCommit: %s\nGo: %s\nPlatform: %s/%s",
		Version,
		BuildTime,
		GitCommit,
		runtime.Version(),
		runtime.GOOS,
		runtime.GOARCH,
	)
}
