// Package version holds build information, set with -ldflags at build
// time.
package version

var (
	// Version is the release version, e.g. v0.1.0.
	Version = "v0.0.0-dev"
	// GitCommit is the commit the binary was built from.
	GitCommit = "unknown"
)

// Info is the version information reported by the daemon.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
}

// Get returns the build information.
func Get() Info {
	return Info{Version: Version, GitCommit: GitCommit}
}
