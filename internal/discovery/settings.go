package discovery

import (
	"path"
	"sort"
	"strings"

	"codekb/internal/config"
)

// Category groups auto-detected exclusions.
type Category string

const (
	CategoryPackageManager Category = "package-manager"
	CategoryBuildOutput    Category = "build-output"
	CategoryVenv           Category = "venv"
	CategoryCache          Category = "cache"
	CategoryVCS            Category = "vcs"
	CategoryGenerated      Category = "generated"
)

// AllCategories lists every auto-detected category.
func AllCategories() []Category {
	return []Category{
		CategoryPackageManager, CategoryBuildOutput, CategoryVenv,
		CategoryCache, CategoryVCS, CategoryGenerated,
	}
}

// Settings is a read-only snapshot of exclusion rules for one discovery call.
type Settings struct {
	// Always entries are excluded regardless of auto-detection. An entry is a
	// directory name, a workspace-relative path or a glob over either.
	Always []string
	// Never entries are kept even when auto-detection would exclude them.
	Never []string
	// Categories enables auto-detected groups; empty enables all.
	Categories       []Category
	RespectGitignore bool
}

// DefaultSettings enables every category and honours .gitignore.
func DefaultSettings() Settings {
	return Settings{RespectGitignore: true}
}

// FromConfig converts the configured exclusions.
func FromConfig(c config.ExclusionsConfig) Settings {
	s := Settings{
		Always:           append([]string(nil), c.Always...),
		Never:            append([]string(nil), c.Never...),
		RespectGitignore: c.RespectGitignore,
	}
	for _, cat := range c.Categories {
		s.Categories = append(s.Categories, Category(cat))
	}
	return s
}

func (s Settings) enabled(c Category) bool {
	if len(s.Categories) == 0 {
		return true
	}
	for _, e := range s.Categories {
		if e == c {
			return true
		}
	}
	return false
}

// key is a canonical encoding used for cache lookups.
func (s Settings) key() string {
	norm := func(in []string) string {
		out := append([]string(nil), in...)
		sort.Strings(out)
		return strings.Join(out, ",")
	}
	cats := make([]string, 0, len(s.Categories))
	for _, c := range s.Categories {
		cats = append(cats, string(c))
	}
	gi := "0"
	if s.RespectGitignore {
		gi = "1"
	}
	return norm(s.Always) + "|" + norm(s.Never) + "|" + norm(cats) + "|" + gi
}

// matchAny reports whether a directory (by name and relative path) matches
// any entry in list.
func matchAny(list []string, name, rel string) bool {
	for _, entry := range list {
		entry = strings.Trim(entry, "/")
		if entry == "" {
			continue
		}
		if entry == name || entry == rel {
			return true
		}
		if ok, _ := path.Match(entry, name); ok {
			return true
		}
		if ok, _ := path.Match(entry, rel); ok {
			return true
		}
	}
	return false
}
