package config

// Build identity, injected with -ldflags at release time. The defaults
// identify a from-source development build.
var (
	Version   = "dev"
	Build     = "unknown"
	GitCommit = "unknown"
)

// GetVersion returns the release version.
func GetVersion() string {
	return Version
}

// GetBuild returns the build timestamp.
func GetBuild() string {
	return Build
}

// GetGitCommit returns the commit the binary was built from.
func GetGitCommit() string {
	return GitCommit
}
