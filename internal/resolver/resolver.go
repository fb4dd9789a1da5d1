// Package resolver maps raw import strings to in-repository files.
//
// Resolution only probes the filesystem for existence. A failed stat means the
// candidate does not exist; it is never an error. Imports that match no file
// resolve to nothing and are recorded by the caller as unresolved edges.
package resolver

import (
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/mod/modfile"

	"codekb/internal/lang"
)

// jsExtensions is the probe order for extensionless JS/TS specifiers.
var jsExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs", ".d.ts"}

// Options configures a Resolver.
type Options struct {
	// SourceRoots are extra directories dotted imports are probed under, e.g. "src".
	SourceRoots []string
}

// Resolver resolves imports for one workspace root.
type Resolver struct {
	root        string
	sourceRoots []string

	// goModules maps Go module paths to workspace-relative directories.
	// The main module maps to "".
	goModules map[string]string
}

// New creates a resolver for root. The root go.mod, when present, supplies
// the main module path and local replace directives.
func New(root string, opts Options) *Resolver {
	r := &Resolver{
		root:      root,
		goModules: make(map[string]string),
	}
	for _, sr := range opts.SourceRoots {
		sr = strings.Trim(path.Clean(filepath.ToSlash(sr)), "/")
		if sr != "" && sr != "." {
			r.sourceRoots = append(r.sourceRoots, sr)
		}
	}
	r.loadGoMod()
	return r
}

func (r *Resolver) loadGoMod() {
	data, err := os.ReadFile(filepath.Join(r.root, "go.mod"))
	if err != nil {
		return
	}
	f, err := modfile.Parse("go.mod", data, nil)
	if err != nil || f.Module == nil {
		return
	}
	r.goModules[f.Module.Mod.Path] = ""
	for _, rep := range f.Replace {
		// Local replacements have no version and a filesystem path.
		if rep.New.Version != "" || !modfile.IsDirectoryPath(rep.New.Path) {
			continue
		}
		dir := path.Clean(filepath.ToSlash(rep.New.Path))
		if path.IsAbs(dir) || dir == ".." || strings.HasPrefix(dir, "../") {
			continue
		}
		if dir == "." {
			dir = ""
		}
		r.goModules[rep.Old.Path] = dir
	}
}

// GoModule returns the main module path, or "" when the workspace has no go.mod.
func (r *Resolver) GoModule() string {
	for mod, dir := range r.goModules {
		if dir == "" {
			return mod
		}
	}
	return ""
}

// Resolve returns the existing workspace-relative files raw may refer to,
// most specific first. importer is the workspace-relative slash path of the
// importing file.
func (r *Resolver) Resolve(importer, raw string) []string {
	l, ok := lang.FromPath(importer)
	if !ok || raw == "" {
		return nil
	}

	if l.Family() == lang.FamilyGo {
		return r.resolveGo(raw)
	}

	var out []string
	seen := make(map[string]bool)
	for _, c := range r.Candidates(importer, raw) {
		if !seen[c] && r.isFile(c) {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// Candidates lists every path Resolve would probe for raw, without touching
// the filesystem. Go imports are answered by Matches instead since they
// resolve to whole directories.
func (r *Resolver) Candidates(importer, raw string) []string {
	l, ok := lang.FromPath(importer)
	if !ok || raw == "" {
		return nil
	}
	switch l.Family() {
	case lang.FamilyPython:
		return r.pythonCandidates(importer, raw)
	case lang.FamilyJS:
		return jsCandidates(importer, raw)
	default:
		return nil
	}
}

// Matches reports whether target is one of the files raw could resolve to
// from importer. It performs no I/O.
func (r *Resolver) Matches(importer, raw, target string) bool {
	l, ok := lang.FromPath(importer)
	if !ok {
		return false
	}
	if l.Family() == lang.FamilyGo {
		dir, ok := r.goPackageDir(raw)
		return ok && isGoSource(target) && path.Dir(target) == nonEmptyDir(dir)
	}
	for _, c := range r.Candidates(importer, raw) {
		if c == target {
			return true
		}
	}
	return false
}

func (r *Resolver) pythonCandidates(importer, raw string) []string {
	if strings.HasPrefix(raw, ".") {
		dots := len(raw) - len(strings.TrimLeft(raw, "."))
		base := path.Dir(importer)
		for i := 1; i < dots; i++ {
			if base == "." {
				return nil
			}
			base = path.Dir(base)
		}
		rest := strings.ReplaceAll(raw[dots:], ".", "/")
		if rest == "" {
			return []string{joinRel(base, "__init__.py")}
		}
		return pythonModuleFiles(joinRel(base, rest))
	}

	rel := strings.ReplaceAll(raw, ".", "/")
	out := pythonModuleFiles(rel)
	for _, sr := range r.sourceRoots {
		out = append(out, pythonModuleFiles(sr+"/"+rel)...)
	}
	return out
}

func pythonModuleFiles(base string) []string {
	return []string{base + ".py", base + ".pyi", base + "/__init__.py"}
}

func jsCandidates(importer, raw string) []string {
	if !strings.HasPrefix(raw, "./") && !strings.HasPrefix(raw, "../") && raw != "." && raw != ".." {
		return nil
	}
	base := joinRel(path.Dir(importer), raw)
	if base == "" || strings.HasPrefix(base, "../") || base == ".." {
		return nil
	}

	out := []string{base}
	// ESM TypeScript imports name the emitted .js file.
	if ext := path.Ext(base); ext == ".js" || ext == ".jsx" || ext == ".mjs" || ext == ".cjs" {
		stem := strings.TrimSuffix(base, ext)
		out = append(out, stem+".ts", stem+".tsx")
	}
	for _, ext := range jsExtensions {
		out = append(out, base+ext)
	}
	for _, ext := range jsExtensions {
		out = append(out, base+"/index"+ext)
	}
	return out
}

// goPackageDir maps an import path to a workspace-relative directory when it
// belongs to the main module or a locally replaced module.
func (r *Resolver) goPackageDir(raw string) (string, bool) {
	best := ""
	found := false
	for mod := range r.goModules {
		if (raw == mod || strings.HasPrefix(raw, mod+"/")) && len(mod) >= len(best) {
			best = mod
			found = true
		}
	}
	if !found {
		return "", false
	}
	sub := strings.TrimPrefix(strings.TrimPrefix(raw, best), "/")
	return joinRel(r.goModules[best], sub), true
}

func (r *Resolver) resolveGo(raw string) []string {
	dir, ok := r.goPackageDir(raw)
	if !ok {
		return nil
	}
	entries, err := os.ReadDir(filepath.Join(r.root, filepath.FromSlash(dir)))
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		rel := joinRel(dir, e.Name())
		if !e.IsDir() && isGoSource(rel) {
			out = append(out, rel)
		}
	}
	sort.Strings(out)
	return out
}

func isGoSource(rel string) bool {
	return strings.HasSuffix(rel, ".go") && !strings.HasSuffix(rel, "_test.go")
}

func (r *Resolver) isFile(rel string) bool {
	info, err := os.Stat(filepath.Join(r.root, filepath.FromSlash(rel)))
	return err == nil && info.Mode().IsRegular()
}

// joinRel joins slash paths relative to the workspace root; "." becomes "".
func joinRel(elem ...string) string {
	p := path.Join(elem...)
	if p == "." {
		return ""
	}
	return p
}

func nonEmptyDir(dir string) string {
	if dir == "" {
		return "."
	}
	return dir
}
