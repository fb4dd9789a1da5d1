// Package testutil provides helpers for building throwaway workspaces in tests.
package testutil

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"
)

// Workspace is a temporary source tree rooted in t.TempDir().
type Workspace struct {
	t    *testing.T
	Root string
}

// NewWorkspace creates a workspace populated with files (slash path -> content).
func NewWorkspace(t *testing.T, files map[string]string) *Workspace {
	t.Helper()

	root := t.TempDir()
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	w := &Workspace{t: t, Root: root}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		w.Write(name, files[name])
	}
	return w
}

// Abs returns the absolute path for a workspace-relative slash path.
func (w *Workspace) Abs(rel string) string {
	return filepath.Join(w.Root, filepath.FromSlash(rel))
}

// Write creates or overwrites a file, creating parent directories.
func (w *Workspace) Write(rel, content string) {
	w.t.Helper()

	path := w.Abs(rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		w.t.Fatalf("mkdir %s: %v", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		w.t.Fatalf("write %s: %v", rel, err)
	}
}

// Remove deletes a file or directory tree.
func (w *Workspace) Remove(rel string) {
	w.t.Helper()

	if err := os.RemoveAll(w.Abs(rel)); err != nil {
		w.t.Fatalf("remove %s: %v", rel, err)
	}
}

// Mkdir creates a directory (and parents).
func (w *Workspace) Mkdir(rel string) {
	w.t.Helper()

	if err := os.MkdirAll(w.Abs(rel), 0o755); err != nil {
		w.t.Fatalf("mkdir %s: %v", rel, err)
	}
}

// Touch moves a file's mtime forward by d without changing its content.
func (w *Workspace) Touch(rel string, d time.Duration) {
	w.t.Helper()

	path := w.Abs(rel)
	info, err := os.Stat(path)
	if err != nil {
		w.t.Fatalf("stat %s: %v", rel, err)
	}
	mt := info.ModTime().Add(d)
	if err := os.Chtimes(path, mt, mt); err != nil {
		w.t.Fatalf("chtimes %s: %v", rel, err)
	}
}
