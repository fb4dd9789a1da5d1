package discovery

import (
	"os"
	"path/filepath"
	"strings"
)

// knownDirs are excluded by name alone, without probing the filesystem.
var knownDirs = map[string]Category{
	"node_modules":     CategoryPackageManager,
	"bower_components": CategoryPackageManager,
	"jspm_packages":    CategoryPackageManager,
	"vendor":           CategoryPackageManager,
	".yarn":            CategoryPackageManager,
	".pnpm-store":      CategoryPackageManager,

	"__pycache__":        CategoryCache,
	".mypy_cache":        CategoryCache,
	".pytest_cache":      CategoryCache,
	".ruff_cache":        CategoryCache,
	".cache":             CategoryCache,
	".parcel-cache":      CategoryCache,
	".turbo":             CategoryCache,
	".gradle":            CategoryCache,
	".eggs":              CategoryCache,
	".ipynb_checkpoints": CategoryCache,

	".git": CategoryVCS,
	".hg":  CategoryVCS,
	".svn": CategoryVCS,
	".bzr": CategoryVCS,

	".venv":         CategoryVenv,
	".tox":          CategoryVenv,
	".nox":          CategoryVenv,
	"site-packages": CategoryVenv,

	".next":       CategoryBuildOutput,
	".nuxt":       CategoryBuildOutput,
	".svelte-kit": CategoryBuildOutput,
	".output":     CategoryBuildOutput,
	"coverage":    CategoryBuildOutput,
	"htmlcov":     CategoryBuildOutput,

	".codekb":    CategoryGenerated,
	".idea":      CategoryGenerated,
	".vscode":    CategoryGenerated,
	".terraform": CategoryGenerated,
}

// ambiguousDirs need marker files before they are treated as generated.
var ambiguousDirs = map[string]bool{
	"build":  true,
	"dist":   true,
	"out":    true,
	"env":    true,
	"venv":   true,
	"target": true,
	"lib":    true,
}

// parentManifests in the parent directory mark a sibling build/dist/out as output.
var parentManifests = []string{
	"package.json", "package-lock.json", "yarn.lock", "pnpm-lock.yaml", "bun.lockb",
	"pyproject.toml", "setup.py", "setup.cfg", "poetry.lock", "Pipfile.lock",
	"Cargo.toml", "Cargo.lock", "pom.xml", "build.gradle", "build.gradle.kts",
	"tsconfig.json", "go.mod",
}

// buildInfoFiles inside a directory mark it as build output.
var buildInfoFiles = []string{
	"build-info.json", ".buildinfo", "BUILD_INFO", "asset-manifest.json",
	"manifest.json", ".rustc_info.json", "CACHEDIR.TAG",
}

// classifyByName is pass 1: a pure lookup on the directory name.
func classifyByName(name string) (Category, bool) {
	c, ok := knownDirs[name]
	if ok {
		return c, true
	}
	if strings.HasSuffix(name, ".egg-info") {
		return CategoryGenerated, true
	}
	return "", false
}

// classifyByMarkers is pass 2 for ambiguous names: it probes dir and its
// parent for files that prove the content is generated.
func classifyByMarkers(dir, name string) (Category, bool) {
	if !ambiguousDirs[name] {
		return "", false
	}

	switch name {
	case "env", "venv":
		if exists(dir, "pyvenv.cfg") || exists(dir, "bin", "activate") || exists(dir, "Scripts", "activate") {
			return CategoryVenv, true
		}
		return "", false
	case "target":
		parent := filepath.Dir(dir)
		if exists(parent, "Cargo.toml") || exists(parent, "pom.xml") || exists(dir, "CACHEDIR.TAG") {
			return CategoryBuildOutput, true
		}
		return "", false
	case "lib":
		// lib is usually source; only emitted TypeScript output counts.
		if hasSuffixEntry(dir, ".tsbuildinfo") || hasSuffixEntry(filepath.Dir(dir), ".tsbuildinfo") {
			return CategoryGenerated, true
		}
		return "", false
	}

	// build, dist, out
	if hasSuffixEntry(dir, ".tsbuildinfo") || hasSuffixEntry(filepath.Dir(dir), ".tsbuildinfo") {
		return CategoryBuildOutput, true
	}
	for _, f := range buildInfoFiles {
		if exists(dir, f) {
			return CategoryBuildOutput, true
		}
	}
	parent := filepath.Dir(dir)
	for _, f := range parentManifests {
		if exists(parent, f) {
			return CategoryBuildOutput, true
		}
	}
	return "", false
}

func exists(elem ...string) bool {
	_, err := os.Stat(filepath.Join(elem...))
	return err == nil
}

func hasSuffixEntry(dir, suffix string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), suffix) {
			return true
		}
	}
	return false
}
