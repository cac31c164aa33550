// Package version carries build identification, overridden at link time with
// -ldflags "-X github.com/banshee-data/slotcar.sim/internal/version.Version=...".
package version

var (
	// Version is the emulator release version.
	Version = "dev"
	// GitSHA is the git commit the binary was built from.
	GitSHA = "unknown"
)

// String formats the build identification for startup logging.
func String() string {
	return Version + " (" + GitSHA + ")"
}
