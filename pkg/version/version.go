// Package version holds the build identity injected at link time:
//
//	-X 'github.com/compozy/repokit/pkg/version.Version=v1.0.0'
//	-X 'github.com/compozy/repokit/pkg/version.CommitHash=abc123'
//	-X 'github.com/compozy/repokit/pkg/version.BuildDate=2025-01-01T00:00:00Z'
package version

import "fmt"

const unknown = "unknown"

var (
	Version    = unknown
	CommitHash = unknown
	BuildDate  = unknown
)

// Info is the build identity in structured form.
type Info struct {
	Version    string `json:"version"`
	CommitHash string `json:"commit_hash"`
	BuildDate  string `json:"build_date"`
}

// Get returns the current build information
func Get() Info {
	return Info{
		Version:    Version,
		CommitHash: CommitHash,
		BuildDate:  BuildDate,
	}
}

// String renders the info for the --version flag.
func (i Info) String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", i.Version, i.CommitHash, i.BuildDate)
}
