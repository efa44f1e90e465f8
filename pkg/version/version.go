// Package version holds build information for the fortune binary.
// The variables are overwritten at link time.
package version

// Build information, set via ldflags.
// Example: go build -ldflags "-X fortuneteller/pkg/version.Version=v1.2.3".
//
//nolint:gochecknoglobals // These must be package-level vars for ldflags injection.
var (
	// Version is the semantic version, or "dev" for local builds.
	Version = "dev"

	// Commit is the git commit SHA of the build.
	Commit = "none"

	// Date is the build date in ISO format.
	Date = "unknown"
)
