// Package version provides build version information.
package version

import "fmt"

// Build information. Populated at build time via -ldflags.
var (
	// Version is the semantic version of the build
	Version = "dev"
	// GitCommit is the git commit hash of the build
	GitCommit = "unknown"
	// BuildDate is the date the binary was built
	BuildDate = "unknown"
)

// Info returns a formatted version string
func Info() string {
	return fmt.Sprintf("galaxy-oracle %s (commit %s, built %s)", Version, GitCommit, BuildDate)
}

// Short returns just the version number
func Short() string {
	return Version
}

// AgentString returns the user agent advertised by the bundled API client.
func AgentString() string {
	return "galaxy-oracle/" + Version
}
