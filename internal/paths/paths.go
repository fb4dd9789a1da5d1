// Package paths canonicalizes workspace paths and locates codekb's project-local state.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// StateDirName is the project-local directory holding codekb state.
	StateDirName = ".codekb"

	// StateDirEnvVar overrides the state directory location (absolute path).
	StateDirEnvVar = "CODEKB_STATE_DIR"

	databaseFile    = "codekb.db"
	fingerprintFile = "fingerprint.json"
	configFile      = "config.json"
	exclusionsFile  = "exclusions.toml"
	kbDirName       = "kb"
	logsDirName     = "logs"
	logFile         = "codekb.log"
)

// StateDir returns the state directory for a workspace root.
func StateDir(root string) string {
	if env := os.Getenv(StateDirEnvVar); env != "" {
		return env
	}
	return filepath.Join(root, StateDirName)
}

// EnsureStateDir creates the state directory if it does not exist.
func EnsureStateDir(root string) (string, error) {
	dir := StateDir(root)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}
	return dir, nil
}

// DatabasePath returns the path of the SQLite database for a workspace.
func DatabasePath(root string) string {
	return filepath.Join(StateDir(root), databaseFile)
}

// FingerprintPath returns the path of the persisted fingerprint record.
func FingerprintPath(root string) string {
	return filepath.Join(StateDir(root), fingerprintFile)
}

// ConfigPath returns the path of the workspace configuration file.
func ConfigPath(root string) string {
	return filepath.Join(StateDir(root), configFile)
}

// ExclusionsPath returns the path of the optional exclusion settings file.
func ExclusionsPath(root string) string {
	return filepath.Join(StateDir(root), exclusionsFile)
}

// KBDir returns the directory the knowledge base is written to.
func KBDir(root string) string {
	return filepath.Join(StateDir(root), kbDirName)
}

// LogPath returns the path of the workspace log file.
func LogPath(root string) string {
	return filepath.Join(StateDir(root), logsDirName, logFile)
}

// CanonicalizePath converts an absolute path to a workspace-relative slash path.
// Symlinks are resolved when the target exists.
func CanonicalizePath(absolutePath string, root string) (string, error) {
	resolved, err := filepath.EvalSymlinks(absolutePath)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", err
		}
		resolved = absolutePath
	}

	rootResolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", err
		}
		rootResolved = root
	}

	rel, err := filepath.Rel(rootResolved, resolved)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// IsWithinRepo reports whether path lies inside root.
func IsWithinRepo(path string, root string) bool {
	canonical, err := CanonicalizePath(path, root)
	if err != nil {
		return false
	}
	return canonical != ".." && !strings.HasPrefix(canonical, "../")
}

// NormalizePath converts separators to forward slashes and cleans the path.
func NormalizePath(path string) string {
	if path == "" {
		return ""
	}
	return filepath.ToSlash(filepath.Clean(filepath.FromSlash(path)))
}

// JoinRepoPath joins a root with a canonical slash path using OS separators.
func JoinRepoPath(root string, canonicalPath string) string {
	normalized := strings.ReplaceAll(canonicalPath, "\\", "/")
	parts := strings.Split(normalized, "/")
	return filepath.Join(append([]string{root}, parts...)...)
}

// ToRelative accepts an absolute or workspace-relative path and returns the
// canonical relative form. Paths outside root are returned unchanged.
func ToRelative(root, path string) string {
	if !filepath.IsAbs(path) {
		return NormalizePath(path)
	}
	rel, err := CanonicalizePath(path, root)
	if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
		return NormalizePath(path)
	}
	return rel
}
