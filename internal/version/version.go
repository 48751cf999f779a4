// Package version provides centralized version information for bsl-index.
package version

import "strconv"

// These variables can be overridden at build time using ldflags:
// go build -ldflags "-X bslanalyzer/internal/version.Version=1.0.0 -X bslanalyzer/internal/version.Commit=abc123"
var (
	// Version is the semantic version of the analyzer
	Version = "0.9.0"

	// Commit is the git commit hash (set at build time)
	Commit = "unknown"

	// BuildDate is the build timestamp (set at build time)
	BuildDate = "unknown"
)

// CacheFormatVersion is bumped whenever the persisted entity record layout
// changes incompatibly. Caches written with another format are rebuilt.
const CacheFormatVersion = 1

// Info returns a formatted version string
func Info() string {
	if Commit != "unknown" && len(Commit) > 7 {
		return Version + " (" + Commit[:7] + ")"
	}
	return Version
}

// Full returns complete version information
func Full() string {
	return "bsl-index version " + Version + "\n" +
		"Commit: " + Commit + "\n" +
		"Built: " + BuildDate + "\n" +
		"Cache format: " + strconv.Itoa(CacheFormatVersion)
}

