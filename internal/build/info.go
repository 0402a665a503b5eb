// Package build carries version metadata stamped in by the linker:
//
//	go build -ldflags "-X github.com/shaharia-lab/tradedev/internal/build.Version=v0.3.0"
package build

import "fmt"

// These variables are set at build time via -ldflags.
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildDate = "unknown"
)

// String returns a single human-readable build info string.
func String() string {
	return fmt.Sprintf("tradedev %s (commit %s, built %s)", Version, CommitSHA, BuildDate)
}

// Fields returns the build info keyed the way the version endpoint reports it.
func Fields() map[string]string {
	return map[string]string{
		"version":    Version,
		"commit":     CommitSHA,
		"build_date": BuildDate,
	}
}
