// Package version provides build-time version information.
//
// Variables are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/rickgao/stocksync/internal/version.Version=1.0.0 \
//	                   -X github.com/rickgao/stocksync/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/rickgao/stocksync/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

import "github.com/rickgao/stocksync/internal/event"

// Build-time variables (set via ldflags)
var (
	// Version is the semantic version (e.g., "1.0.0")
	Version = "dev"

	// Commit is the git commit hash (short form)
	Commit = "unknown"

	// BuildTime is the UTC build timestamp (ISO 8601)
	BuildTime = "unknown"
)

// BuildInfo is the version reported by the CLI and the health endpoint.
type BuildInfo struct {
	Version        string `json:"version"`
	Commit         string `json:"commit"`
	BuildTime      string `json:"build_time"`
	CatalogVersion int    `json:"catalog_version"`
}

// Info returns the current build info.
func Info() BuildInfo {
	return BuildInfo{
		Version:        Version,
		Commit:         Commit,
		BuildTime:      BuildTime,
		CatalogVersion: event.CatalogVersion,
	}
}

// String returns a formatted version string.
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}
