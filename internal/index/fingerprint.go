// Package index computes workspace fingerprints and guards rebuilds with a
// process-wide lock.
package index

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"codekb/internal/paths"
)

// FingerprintVersion is the current version of the fingerprint record format.
const FingerprintVersion = 1

// FileSignature is the metadata tuple a fingerprint is computed over.
type FileSignature struct {
	Path         string `json:"path"`
	Size         int64  `json:"size"`
	ModTimeNanos int64  `json:"mtimeNanos"`
}

// Fingerprint is the aggregate signature of the workspace a graph was built from.
type Fingerprint struct {
	Version   int       `json:"version"`
	Hash      string    `json:"hash"`
	FileCount int       `json:"fileCount"`
	BuiltAt   time.Time `json:"builtAt"`
	BuildID   string    `json:"buildId"`
	Duration  string    `json:"duration,omitempty"`
}

// StatFiles collects signatures for workspace-relative paths. Files that
// vanished since discovery are dropped; any other stat failure is returned.
func StatFiles(root string, rels []string) ([]FileSignature, error) {
	sigs := make([]FileSignature, 0, len(rels))
	for _, rel := range rels {
		sig, err := Stat(root, rel)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

// Stat returns the signature of a single workspace file.
func Stat(root, rel string) (FileSignature, error) {
	info, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return FileSignature{}, fmt.Errorf("stat %s: %w", rel, err)
	}
	return FileSignature{Path: rel, Size: info.Size(), ModTimeNanos: info.ModTime().UnixNano()}, nil
}

// Compute hashes the sorted signature tuples. BuiltAt and BuildID are left
// for the caller to stamp once the build they describe has succeeded.
func Compute(sigs []FileSignature) Fingerprint {
	sorted := make([]FileSignature, len(sigs))
	copy(sorted, sigs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	h := sha256.New()
	buf := make([]byte, 0, 128)
	for _, s := range sorted {
		buf = buf[:0]
		buf = append(buf, s.Path...)
		buf = append(buf, 0)
		buf = strconv.AppendInt(buf, s.Size, 10)
		buf = append(buf, 0)
		buf = strconv.AppendInt(buf, s.ModTimeNanos, 10)
		buf = append(buf, '\n')
		h.Write(buf)
	}

	return Fingerprint{
		Version:   FingerprintVersion,
		Hash:      hex.EncodeToString(h.Sum(nil)),
		FileCount: len(sorted),
	}
}

// Stamp marks the fingerprint as describing a completed build.
func (f *Fingerprint) Stamp(started time.Time) {
	f.BuiltAt = time.Now().UTC()
	f.BuildID = uuid.NewString()
	f.Duration = time.Since(started).Round(time.Millisecond).String()
}

// Matches reports whether two fingerprints describe the same workspace state.
// File count is compared alongside the hash.
func (f *Fingerprint) Matches(other *Fingerprint) bool {
	if f == nil || other == nil {
		return false
	}
	return f.Hash == other.Hash && f.FileCount == other.FileCount
}

// Age describes how long ago the fingerprint was built.
func (f *Fingerprint) Age() string {
	if f == nil || f.BuiltAt.IsZero() {
		return "never"
	}
	return humanDuration(time.Since(f.BuiltAt))
}

// LoadFingerprint reads the mirrored fingerprint record for root.
// Returns nil without error when no record exists or its version differs.
func LoadFingerprint(root string) (*Fingerprint, error) {
	data, err := os.ReadFile(paths.FingerprintPath(root))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading fingerprint: %w", err)
	}

	var fp Fingerprint
	if err := json.Unmarshal(data, &fp); err != nil {
		return nil, fmt.Errorf("parsing fingerprint: %w", err)
	}
	if fp.Version != FingerprintVersion {
		return nil, nil
	}
	return &fp, nil
}

// Save writes the fingerprint record atomically (temp file + rename).
func (f *Fingerprint) Save(root string) error {
	if _, err := paths.EnsureStateDir(root); err != nil {
		return err
	}
	f.Version = FingerprintVersion

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling fingerprint: %w", err)
	}
	return WriteFileAtomic(paths.FingerprintPath(root), data)
}

// WriteFileAtomic replaces path with data so readers never see a partial file.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("renaming %s: %w", path, err)
	}
	return nil
}

// Changes is the difference between two sets of file signatures.
type Changes struct {
	Created  []string
	Modified []string
	Deleted  []string
}

// Empty reports whether nothing changed.
func (c Changes) Empty() bool {
	return len(c.Created) == 0 && len(c.Modified) == 0 && len(c.Deleted) == 0
}

// Len returns the number of changed paths.
func (c Changes) Len() int {
	return len(c.Created) + len(c.Modified) + len(c.Deleted)
}

// Diff compares persisted signatures against current ones.
func Diff(previous, current []FileSignature) Changes {
	prev := make(map[string]FileSignature, len(previous))
	for _, s := range previous {
		prev[s.Path] = s
	}

	var c Changes
	seen := make(map[string]bool, len(current))
	for _, s := range current {
		seen[s.Path] = true
		old, ok := prev[s.Path]
		switch {
		case !ok:
			c.Created = append(c.Created, s.Path)
		case old.Size != s.Size || old.ModTimeNanos != s.ModTimeNanos:
			c.Modified = append(c.Modified, s.Path)
		}
	}
	for _, s := range previous {
		if !seen[s.Path] {
			c.Deleted = append(c.Deleted, s.Path)
		}
	}

	sort.Strings(c.Created)
	sort.Strings(c.Modified)
	sort.Strings(c.Deleted)
	return c
}

func humanDuration(d time.Duration) string {
	if d < time.Minute {
		return "just now"
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	}
	days := int(d.Hours() / 24)
	if days == 1 {
		return "1 day ago"
	}
	return fmt.Sprintf("%d days ago", days)
}
