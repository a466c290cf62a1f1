// Package version carries build identification, stamped via -ldflags.
package version

var (
	// Version is the release tag, "dev" for local builds.
	Version = "dev"
	// GitSHA is the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String renders the version and commit in one token for logs.
func String() string {
	return Version + " (" + GitSHA + ")"
}
