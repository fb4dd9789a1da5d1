// Package discovery enumerates the source files of a workspace, skipping
// dependency trees, build output and other generated content.
package discovery

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	ignore "github.com/sabhiram/go-gitignore"

	kberrors "codekb/internal/errors"
	"codekb/internal/lang"
)

const (
	DefaultTTL       = 30 * time.Second
	DefaultCacheSize = 16
)

// Options configures a Discoverer.
type Options struct {
	TTL       time.Duration
	CacheSize int
}

// Discoverer walks workspaces and caches the result per (root, settings).
type Discoverer struct {
	cache  *expirable.LRU[string, []string]
	logger *slog.Logger
}

// New creates a Discoverer. Zero options fall back to defaults.
func New(opts Options, logger *slog.Logger) *Discoverer {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Discoverer{
		cache:  expirable.NewLRU[string, []string](opts.CacheSize, nil, opts.TTL),
		logger: logger,
	}
}

func cacheKey(root string, s Settings) string {
	return root + "\x00" + s.key()
}

// Discover returns the sorted workspace-relative paths of every tracked
// source file under root. The returned slice must not be modified.
func (d *Discoverer) Discover(ctx context.Context, root string, s Settings) ([]string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, kberrors.New(kberrors.WorkspaceUnreadable, "cannot resolve workspace root", err)
	}
	key := cacheKey(abs, s)
	if files, ok := d.cache.Get(key); ok {
		return files, nil
	}

	start := time.Now()
	files, excluded, err := walk(ctx, abs, s, d.logger)
	if err != nil {
		return nil, err
	}
	d.cache.Add(key, files)
	d.logger.Debug("Discovered workspace files",
		"root", abs,
		"files", len(files),
		"excludedDirs", excluded,
		"duration", time.Since(start),
	)
	return files, nil
}

// Invalidate drops every cached result for root.
func (d *Discoverer) Invalidate(root string) {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	prefix := abs + "\x00"
	for _, k := range d.cache.Keys() {
		if strings.HasPrefix(k, prefix) {
			d.cache.Remove(k)
		}
	}
}

// InvalidateAll drops every cached result.
func (d *Discoverer) InvalidateAll() {
	d.cache.Purge()
}

// Classify reports whether the directory at rel (slash separated, relative
// to root) is excluded by auto-detection, and under which category.
func Classify(root, rel string, s Settings) (Category, bool) {
	name := pathBase(rel)
	if matchAny(s.Never, name, rel) {
		return "", false
	}
	if c, ok := classifyByName(name); ok && s.enabled(c) {
		return c, true
	}
	if c, ok := classifyByMarkers(filepath.Join(root, filepath.FromSlash(rel)), name); ok && s.enabled(c) {
		return c, true
	}
	return "", false
}

func pathBase(rel string) string {
	if i := strings.LastIndexByte(rel, '/'); i >= 0 {
		return rel[i+1:]
	}
	return rel
}

// gitignores holds the compiled .gitignore of each directory that has one.
type gitignores map[string]*ignore.GitIgnore

func (g gitignores) load(root, dirRel string, logger func(string, error)) {
	p := filepath.Join(root, filepath.FromSlash(dirRel), ".gitignore")
	if _, err := os.Stat(p); err != nil {
		return
	}
	gi, err := ignore.CompileIgnoreFile(p)
	if err != nil {
		logger(p, err)
		return
	}
	g[dirRel] = gi
}

// ignored checks rel against the .gitignore of every ancestor directory.
func (g gitignores) ignored(rel string, isDir bool) bool {
	if len(g) == 0 {
		return false
	}
	dir := rel
	for {
		i := strings.LastIndexByte(dir, '/')
		if i < 0 {
			dir = ""
		} else {
			dir = dir[:i]
		}
		if gi, ok := g[dir]; ok {
			sub := rel
			if dir != "" {
				sub = strings.TrimPrefix(rel, dir+"/")
			}
			if gi.MatchesPath(sub) || (isDir && gi.MatchesPath(sub+"/")) {
				return true
			}
		}
		if dir == "" {
			return false
		}
	}
}

func walk(ctx context.Context, root string, s Settings, logger *slog.Logger) ([]string, int, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, 0, kberrors.New(kberrors.WorkspaceUnreadable, "workspace root is not readable", err)
	}
	if !info.IsDir() {
		return nil, 0, kberrors.Newf(kberrors.WorkspaceUnreadable, "workspace root %s is not a directory", root)
	}
	if _, err := os.ReadDir(root); err != nil {
		return nil, 0, kberrors.New(kberrors.WorkspaceUnreadable, "workspace root is not readable", err)
	}

	gi := gitignores{}
	var files []string
	excluded := 0
	warn := func(p string, err error) {
		logger.Debug("Skipping unreadable .gitignore", "path", p, "error", err.Error())
	}

	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if p == root {
				return walkErr
			}
			// Unreadable subtrees are skipped.
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if rel == "." {
				if s.RespectGitignore {
					gi.load(root, "", warn)
				}
				return nil
			}
			if excludedDir(root, rel, s, gi) {
				excluded++
				return filepath.SkipDir
			}
			if s.RespectGitignore {
				gi.load(root, rel, warn)
			}
			return nil
		}

		if !d.Type().IsRegular() || !lang.IsTracked(rel) {
			return nil
		}
		if matchAny(s.Always, pathBase(rel), rel) {
			return nil
		}
		if s.RespectGitignore && gi.ignored(rel, false) && !matchAny(s.Never, pathBase(rel), rel) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, kberrors.New(kberrors.WorkspaceUnreadable, "failed to walk workspace", err)
	}

	sort.Strings(files)
	return files, excluded, nil
}

// DirFilter returns a predicate reporting whether the directory at rel would
// be skipped by Discover. The file watcher uses it to avoid watching excluded
// trees. .gitignore files are loaded on first use and cached.
func (d *Discoverer) DirFilter(root string, s Settings) func(rel string) bool {
	var mu sync.Mutex
	gi := gitignores{}
	loaded := make(map[string]bool)
	warn := func(p string, err error) {
		d.logger.Debug("Skipping unreadable .gitignore", "path", p, "error", err.Error())
	}

	return func(rel string) bool {
		rel = strings.Trim(filepath.ToSlash(rel), "/")
		if rel == "" || rel == "." {
			return false
		}
		mu.Lock()
		defer mu.Unlock()
		if s.RespectGitignore {
			for _, dir := range ancestors(rel) {
				if !loaded[dir] {
					loaded[dir] = true
					gi.load(root, dir, warn)
				}
			}
		}
		return excludedDir(root, rel, s, gi)
	}
}

// Excluded reports whether Discover would leave the file at rel out of its
// result. Change events are checked with it so that files in excluded trees
// never reach the graph. Untracked extensions are excluded.
func Excluded(root, rel string, s Settings) bool {
	rel = strings.Trim(filepath.ToSlash(rel), "/")
	if rel == "" || rel == "." || !lang.IsTracked(rel) {
		return true
	}

	gi := gitignores{}
	noop := func(string, error) {}
	dirs := ancestors(rel)
	for _, dir := range dirs {
		if dir != "" && excludedDir(root, dir, s, gi) {
			return true
		}
		if s.RespectGitignore {
			gi.load(root, dir, noop)
		}
	}

	name := pathBase(rel)
	if matchAny(s.Always, name, rel) {
		return true
	}
	return s.RespectGitignore && gi.ignored(rel, false) && !matchAny(s.Never, name, rel)
}

// ancestors lists the parent directories of rel, root ("") first.
func ancestors(rel string) []string {
	out := []string{""}
	for i := 0; i < len(rel); i++ {
		if rel[i] == '/' {
			out = append(out, rel[:i])
		}
	}
	return out
}

func excludedDir(root, rel string, s Settings, gi gitignores) bool {
	name := pathBase(rel)
	if matchAny(s.Always, name, rel) {
		return true
	}
	if matchAny(s.Never, name, rel) {
		return false
	}
	if _, ok := Classify(root, rel, s); ok {
		return true
	}
	return s.RespectGitignore && gi.ignored(rel, true)
}
