// Package version carries build identification, overridden at link
// time via -ldflags "-X .../internal/version.Version=...".
package version

import "fmt"

var (
	// Version is the release tag, or "dev" for local builds.
	Version = "dev"
	// GitSHA is the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String renders the build identification on one line.
func String() string {
	return fmt.Sprintf("%s (%s, built %s)", Version, GitSHA, BuildTime)
}
