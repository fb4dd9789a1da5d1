package discovery

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	kberrors "codekb/internal/errors"
	"codekb/internal/testutil"
)

func discover(t *testing.T, root string, s Settings) []string {
	t.Helper()
	files, err := New(Options{}, nil).Discover(context.Background(), root, s)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	return files
}

func TestDiscoverNameExclusions(t *testing.T) {
	ws := testutil.NewWorkspace(t, map[string]string{
		"src/app.py":                  "import os\n",
		"src/web/index.ts":            "export {}\n",
		"README.md":                   "# readme\n",
		"node_modules/left/index.js":  "module.exports = 1\n",
		".git/hooks/pre-commit.py":    "print(1)\n",
		"src/__pycache__/app.py":      "x = 1\n",
		".venv/lib/site.py":           "x = 1\n",
		".codekb/kb/cache.py":         "x = 1\n",
		"vendor/github.com/x/x.go":    "package x\n",
		"pkg.egg-info/setup.py":       "x = 1\n",
	})

	got := discover(t, ws.Root, DefaultSettings())
	want := []string{"src/app.py", "src/web/index.ts"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Discover() = %v, want %v", got, want)
	}
}

func TestDiscoverAmbiguousDirectories(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		want  []string
	}{
		{
			name: "dist without manifest is source",
			files: map[string]string{
				"dist/tool.py": "x = 1\n",
			},
			want: []string{"dist/tool.py"},
		},
		{
			name: "dist next to package.json is output",
			files: map[string]string{
				"package.json":   "{}\n",
				"src/index.ts":   "export {}\n",
				"dist/index.js":  "exports.a = 1\n",
			},
			want: []string{"src/index.ts"},
		},
		{
			name: "build with tsbuildinfo is output",
			files: map[string]string{
				"build/app.tsbuildinfo": "{}\n",
				"build/app.js":          "x\n",
				"main.ts":               "x\n",
			},
			want: []string{"main.ts"},
		},
		{
			name: "venv with pyvenv.cfg",
			files: map[string]string{
				"venv/pyvenv.cfg":   "home = /usr/bin\n",
				"venv/lib/os.py":    "x = 1\n",
				"app.py":            "x = 1\n",
			},
			want: []string{"app.py"},
		},
		{
			name: "env without markers is source",
			files: map[string]string{
				"env/settings.py": "DEBUG = True\n",
			},
			want: []string{"env/settings.py"},
		},
		{
			name: "target needs cargo manifest",
			files: map[string]string{
				"Cargo.toml":        "[package]\n",
				"src/main.rs":       "fn main() {}\n",
				"target/debug/x.rs": "fn x() {}\n",
			},
			want: []string{"src/main.rs"},
		},
		{
			name: "lib is source by default",
			files: map[string]string{
				"lib/util.py": "x = 1\n",
			},
			want: []string{"lib/util.py"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := testutil.NewWorkspace(t, tt.files)
			got := discover(t, ws.Root, DefaultSettings())
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Discover() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDiscoverOverrides(t *testing.T) {
	ws := testutil.NewWorkspace(t, map[string]string{
		"vendor/lib/x.go":       "package lib\n",
		"generated/api_pb.py":   "x = 1\n",
		"src/models_pb.py":      "x = 1\n",
		"src/models.py":         "x = 1\n",
		"node_modules/m/i.js":   "x\n",
	})

	s := Settings{
		Never:            []string{"vendor"},
		Always:           []string{"generated", "*_pb.py"},
		RespectGitignore: true,
	}
	got := discover(t, ws.Root, s)
	want := []string{"src/models.py", "vendor/lib/x.go"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Discover() = %v, want %v", got, want)
	}
}

func TestDiscoverCategories(t *testing.T) {
	ws := testutil.NewWorkspace(t, map[string]string{
		"node_modules/m/i.js": "x\n",
		".git/x.py":           "x\n",
		"a.py":                "x\n",
	})

	got := discover(t, ws.Root, Settings{Categories: []Category{CategoryVCS}})
	want := []string{"a.py", "node_modules/m/i.js"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Discover() = %v, want %v", got, want)
	}
}

func TestDiscoverGitignore(t *testing.T) {
	ws := testutil.NewWorkspace(t, map[string]string{
		".gitignore":     "secret/\n*.gen.ts\n",
		"secret/key.py":  "x\n",
		"ui/a.gen.ts":    "x\n",
		"ui/a.ts":        "x\n",
		"sub/.gitignore": "local.py\n",
		"sub/local.py":   "x\n",
		"sub/shared.py":  "x\n",
		"local.py":       "x\n",
	})

	got := discover(t, ws.Root, DefaultSettings())
	want := []string{"local.py", "sub/shared.py", "ui/a.ts"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("with gitignore = %v, want %v", got, want)
	}

	got = discover(t, ws.Root, Settings{RespectGitignore: false})
	if len(got) != 6 {
		t.Errorf("without gitignore got %d files (%v), want 6", len(got), got)
	}
}

func TestDiscoverCacheAndInvalidate(t *testing.T) {
	ws := testutil.NewWorkspace(t, map[string]string{"a.py": "x\n"})
	d := New(Options{TTL: time.Hour}, nil)
	ctx := context.Background()
	s := DefaultSettings()

	first, err := d.Discover(ctx, ws.Root, s)
	if err != nil {
		t.Fatal(err)
	}
	ws.Write("b.py", "y\n")

	cached, _ := d.Discover(ctx, ws.Root, s)
	if !reflect.DeepEqual(cached, first) {
		t.Errorf("cached result = %v, want %v", cached, first)
	}

	// Different settings are a different cache entry.
	other, _ := d.Discover(ctx, ws.Root, Settings{})
	if len(other) != 2 {
		t.Errorf("other settings = %v, want 2 files", other)
	}

	d.Invalidate(ws.Root)
	fresh, _ := d.Discover(ctx, ws.Root, s)
	if want := []string{"a.py", "b.py"}; !reflect.DeepEqual(fresh, want) {
		t.Errorf("after Invalidate = %v, want %v", fresh, want)
	}

	ws.Remove("a.py")
	d.InvalidateAll()
	fresh, _ = d.Discover(ctx, ws.Root, s)
	if want := []string{"b.py"}; !reflect.DeepEqual(fresh, want) {
		t.Errorf("after InvalidateAll = %v, want %v", fresh, want)
	}
}

func TestDiscoverTTLExpiry(t *testing.T) {
	ws := testutil.NewWorkspace(t, map[string]string{"a.py": "x\n"})
	d := New(Options{TTL: 20 * time.Millisecond}, nil)
	ctx := context.Background()

	if _, err := d.Discover(ctx, ws.Root, DefaultSettings()); err != nil {
		t.Fatal(err)
	}
	ws.Write("b.py", "y\n")
	time.Sleep(60 * time.Millisecond)

	got, _ := d.Discover(ctx, ws.Root, DefaultSettings())
	if len(got) != 2 {
		t.Errorf("after TTL = %v, want 2 files", got)
	}
}

func TestDiscoverUnreadableRoot(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")
	_, err := New(Options{}, nil).Discover(context.Background(), missing, DefaultSettings())
	if !kberrors.Is(err, kberrors.WorkspaceUnreadable) {
		t.Errorf("error = %v, want WORKSPACE_UNREADABLE", err)
	}
}

func TestDiscoverCancelled(t *testing.T) {
	ws := testutil.NewWorkspace(t, map[string]string{"a/b.py": "x\n"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Options{}, nil).Discover(ctx, ws.Root, DefaultSettings())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestClassify(t *testing.T) {
	ws := testutil.NewWorkspace(t, map[string]string{
		"pyproject.toml": "[project]\n",
		"build/x.py":     "x\n",
	})
	ws.Mkdir("node_modules")

	tests := []struct {
		rel  string
		want Category
		ok   bool
	}{
		{"node_modules", CategoryPackageManager, true},
		{"build", CategoryBuildOutput, true},
		{"src", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			got, ok := Classify(ws.Root, tt.rel, DefaultSettings())
			if got != tt.want || ok != tt.ok {
				t.Errorf("Classify(%q) = (%q, %v), want (%q, %v)", tt.rel, got, ok, tt.want, tt.ok)
			}
		})
	}

	if _, ok := Classify(ws.Root, "build", Settings{Never: []string{"build"}}); ok {
		t.Error("Never should override auto-detection")
	}
}

func TestDirFilter(t *testing.T) {
	ws := testutil.NewWorkspace(t, map[string]string{
		".gitignore":        "scratch/\n",
		"pkg/.gitignore":    "fixtures\n",
		"pkg/a.py":          "x\n",
		"pkg/fixtures/f.py": "x\n",
		"scratch/s.py":      "x\n",
	})
	ws.Mkdir("node_modules")
	ws.Mkdir("src")

	filter := New(Options{}, nil).DirFilter(ws.Root, DefaultSettings())
	tests := []struct {
		rel  string
		want bool
	}{
		{"", false},
		{"src", false},
		{"pkg", false},
		{"node_modules", true},
		{"scratch", true},
		{"pkg/fixtures", true},
		{".codekb", true},
	}
	for _, tt := range tests {
		if got := filter(tt.rel); got != tt.want {
			t.Errorf("filter(%q) = %v, want %v", tt.rel, got, tt.want)
		}
	}
}

func TestExcluded(t *testing.T) {
	ws := testutil.NewWorkspace(t, map[string]string{
		".gitignore":             "scratch/\n*.gen.py\n",
		"pkg/.gitignore":         "fixtures\n",
		"main.py":                "x\n",
		"pkg/a.py":               "x\n",
		"pkg/b.gen.py":           "x\n",
		"pkg/fixtures/f.py":      "x\n",
		"scratch/s.py":           "x\n",
		"node_modules/lib/x.js":  "x\n",
		"legacy/old.py":          "x\n",
		"keep/node_modules/k.py": "x\n",
		"README.md":              "x\n",
	})

	s := DefaultSettings()
	s.Always = []string{"legacy"}
	s.Never = []string{"keep/node_modules"}

	tests := []struct {
		rel  string
		want bool
	}{
		{"main.py", false},
		{"pkg/a.py", false},
		{"keep/node_modules/k.py", false},
		{"pkg/b.gen.py", true},
		{"pkg/fixtures/f.py", true},
		{"scratch/s.py", true},
		{"node_modules/lib/x.js", true},
		{"legacy/old.py", true},
		{"README.md", true},
		{".codekb/kb/x.py", true},
		{"", true},
	}
	for _, tt := range tests {
		if got := Excluded(ws.Root, tt.rel, s); got != tt.want {
			t.Errorf("Excluded(%q) = %v, want %v", tt.rel, got, tt.want)
		}
	}

	// Excluded agrees with what Discover returns.
	files, err := New(Options{}, nil).Discover(context.Background(), ws.Root, s)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	listed := make(map[string]bool, len(files))
	for _, f := range files {
		listed[f] = true
	}
	for _, tt := range tests {
		if tt.rel == "" || tt.rel == "README.md" || strings.HasPrefix(tt.rel, ".codekb") {
			continue
		}
		if listed[tt.rel] == tt.want {
			t.Errorf("Discover listed %q = %v, but Excluded = %v", tt.rel, listed[tt.rel], tt.want)
		}
	}
}
