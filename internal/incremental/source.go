package incremental

import (
	"context"
	"os"
	"path/filepath"

	"codekb/internal/graph"
	"codekb/internal/index"
	"codekb/internal/lang"
	"codekb/internal/parser"
)

// FileSource supplies file contents and metadata by workspace-relative slash
// path. A missing file must be reported with an error wrapping fs.ErrNotExist.
type FileSource interface {
	ReadFile(path string) ([]byte, error)
	Stat(path string) (index.FileSignature, error)
}

// DiskSource reads files below Root.
type DiskSource struct {
	Root string
}

// ReadFile reads a workspace file from disk.
func (d DiskSource) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(filepath.Join(d.Root, filepath.FromSlash(path)))
}

// Stat returns the on-disk signature of a workspace file.
func (d DiskSource) Stat(path string) (index.FileSignature, error) {
	return index.Stat(d.Root, path)
}

// SourceParser extracts facts from file content. *parser.Parser implements it.
type SourceParser interface {
	Parse(ctx context.Context, l lang.Language, rel string, text []byte) parser.Result
}

// FileLister enumerates the tracked files of the workspace. fresh asks the
// lister to bypass any cache, which is needed after files were added or removed.
// Excluded reports whether rel would be left out of ListFiles; change events
// for such paths are not indexed.
type FileLister interface {
	ListFiles(ctx context.Context, fresh bool) ([]string, error)
	Excluded(rel string) bool
}

// Store persists graph facts together with the fingerprint they produce.
// *storage.GraphStore implements it.
type Store interface {
	SaveGraph(facts []graph.FileFacts, fp index.Fingerprint) error
	SaveDelta(upserts []graph.FileFacts, removed []string, fp index.Fingerprint) error
}
