package dbcrypt

import "fmt"

// Version of the dbcrypt library
const Version = "0.4.0"

// Build information (set by ldflags during build)
var (
	GitCommit string
	BuildDate string
)

// VersionInfo returns formatted version information
func VersionInfo() string {
	if GitCommit == "" {
		return fmt.Sprintf("dbcrypt v%s", Version)
	}
	return fmt.Sprintf("dbcrypt v%s (commit: %s, built: %s)", Version, GitCommit, BuildDate)
}
