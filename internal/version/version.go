// Package version holds build information for codekb.
package version

// Overridden at build time:
// go build -ldflags "-X codekb/internal/version.Version=1.0.0 -X codekb/internal/version.Commit=abc123"
var (
	// Version is the semantic version of codekb
	Version = "0.4.0"

	// Commit is the git commit hash (set at build time)
	Commit = "unknown"

	// BuildDate is the build timestamp (set at build time)
	BuildDate = "unknown"
)

// SchemaVersion is the version of the persisted graph schema.
// Bump it whenever stored facts change shape so old databases are rebuilt.
const SchemaVersion = 2

// Info returns a formatted version string
func Info() string {
	if Commit != "unknown" && len(Commit) > 7 {
		return Version + " (" + Commit[:7] + ")"
	}
	return Version
}

// Full returns complete version information
func Full() string {
	return "codekb version " + Version + "\n" +
		"Commit: " + Commit + "\n" +
		"Built: " + BuildDate
}
