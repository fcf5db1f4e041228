package version

import "fmt"

var (
	// Version is the semantic version of the binary. Set with -ldflags at build time.
	Version = "dev"
	// Commit is the git commit hash.
	Commit = "unknown"
	// BuildDate is the build timestamp.
	BuildDate = "unknown"
)

// String renders the build metadata on one line.
func String() string {
	return fmt.Sprintf("silvermonitor %s (commit %s, built %s)", Version, Commit, BuildDate)
}
