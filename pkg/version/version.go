package version

import (
	"fmt"
	"runtime"
)

// Build information, set at build time via ldflags:
//
//	-X intuneget/pkg/version.Version=1.4.0 -X intuneget/pkg/version.GitCommit=$(git rev-parse HEAD)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info contains all version information
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the version information of the running binary
func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String returns "version (shortcommit)" or just the version when no commit is known
func String() string {
	if GitCommit == "unknown" {
		return Version
	}
	if len(GitCommit) > 7 {
		return fmt.Sprintf("%s (%s)", Version, GitCommit[:7])
	}
	return fmt.Sprintf("%s (%s)", Version, GitCommit)
}
