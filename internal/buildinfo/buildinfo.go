// Package buildinfo holds version and build metadata stamped at compile time via ldflags.
package buildinfo

import (
	"fmt"
	"runtime"
)

// These variables are set at build time via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	GitBranch = "unknown"
	BuildTime = "unknown"
)

// BuildInfo returns build metadata as a map, suitable for JSON output.
func BuildInfo() map[string]string {
	return map[string]string{
		"version":    Version,
		"git_commit": GitCommit,
		"git_branch": GitBranch,
		"build_time": BuildTime,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
	}
}

// UserAgent returns the User-Agent sent on outbound HTTP requests.
func UserAgent() string {
	return "imapnotify/" + Version
}

// String returns a one-line summary for logging.
func String() string {
	return fmt.Sprintf("imapnotify %s (%s@%s) built %s", Version, GitCommit, GitBranch, BuildTime)
}
