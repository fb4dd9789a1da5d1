package incremental

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"codekb/internal/graph"
	"codekb/internal/index"
	"codekb/internal/lang"
	"codekb/internal/parser"
	"codekb/internal/paths"
	"codekb/internal/resolver"
	"codekb/internal/testutil"
)

// lineParser understands "import x", "from x import y" and "def name" lines.
// It counts calls per path so tests can check which files were re-parsed.
type lineParser struct {
	mu    sync.Mutex
	calls map[string]int
}

func newLineParser() *lineParser {
	return &lineParser{calls: make(map[string]int)}
}

func (p *lineParser) Parse(_ context.Context, _ lang.Language, rel string, text []byte) parser.Result {
	p.mu.Lock()
	p.calls[rel]++
	p.mu.Unlock()

	res := parser.Result{}
	sc := bufio.NewScanner(bytes.NewReader(text))
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		switch {
		case len(fields) >= 2 && fields[0] == "import":
			res.Imports = append(res.Imports, fields[1])
		case len(fields) >= 4 && fields[0] == "from" && fields[2] == "import":
			res.Imports = append(res.Imports, fields[1])
		case len(fields) >= 2 && fields[0] == "def":
			name := strings.TrimSuffix(fields[1], ":")
			res.Symbols = append(res.Symbols, parser.Symbol{
				ID:       rel + "#" + name,
				Name:     name,
				Kind:     parser.KindFunction,
				File:     rel,
				Exported: !strings.HasPrefix(name, "_"),
				Line:     line,
			})
		}
	}
	return res
}

func (p *lineParser) Calls(rel string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[rel]
}

func (p *lineParser) Total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		n += c
	}
	return n
}

// walkLister lists every tracked file below root, skipping the state
// directory and node_modules.
type walkLister struct {
	root string
}

func skippedDir(name string) bool {
	return name == paths.StateDirName || name == "node_modules"
}

func (l walkLister) Excluded(rel string) bool {
	if !lang.IsTracked(rel) {
		return true
	}
	parts := strings.Split(rel, "/")
	for _, dir := range parts[:len(parts)-1] {
		if skippedDir(dir) {
			return true
		}
	}
	return false
}

func (l walkLister) ListFiles(ctx context.Context, _ bool) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []string
	err := filepath.WalkDir(l.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skippedDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if lang.IsTracked(rel) {
			out = append(out, rel)
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}

var errStoreDown = errors.New("store unavailable")

// memStore keeps the last committed facts and can be told to fail.
type memStore struct {
	mu        sync.Mutex
	facts     map[string]graph.FileFacts
	fp        index.Fingerprint
	fullSaves int
	deltas    int
	fail      bool
}

func newMemStore() *memStore {
	return &memStore{facts: make(map[string]graph.FileFacts)}
}

func (s *memStore) SaveGraph(facts []graph.FileFacts, fp index.Fingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errStoreDown
	}
	s.facts = make(map[string]graph.FileFacts, len(facts))
	for _, f := range facts {
		s.facts[f.File.Path] = f
	}
	s.fp = fp
	s.fullSaves++
	return nil
}

func (s *memStore) SaveDelta(upserts []graph.FileFacts, removed []string, fp index.Fingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errStoreDown
	}
	for _, p := range removed {
		delete(s.facts, p)
	}
	for _, f := range upserts {
		s.facts[f.File.Path] = f
	}
	s.fp = fp
	s.deltas++
	return nil
}

func (s *memStore) setFail(v bool) {
	s.mu.Lock()
	s.fail = v
	s.mu.Unlock()
}

// deniedSource reads from disk but fails ReadFile with a permission error
// for denied paths.
type deniedSource struct {
	DiskSource
	mu     sync.Mutex
	denied map[string]bool
}

func (d *deniedSource) deny(p string) {
	d.mu.Lock()
	d.denied[p] = true
	d.mu.Unlock()
}

func (d *deniedSource) ReadFile(p string) ([]byte, error) {
	d.mu.Lock()
	denied := d.denied[p]
	d.mu.Unlock()
	if denied {
		return nil, &fs.PathError{Op: "open", Path: p, Err: fs.ErrPermission}
	}
	return d.DiskSource.ReadFile(p)
}

type harness struct {
	ws      *testutil.Workspace
	graph   *graph.Graph
	parser  *lineParser
	source  *deniedSource
	store   *memStore
	updater *IndexUpdater
}

func newHarness(t *testing.T, files map[string]string, cfg Config) *harness {
	t.Helper()

	ws := testutil.NewWorkspace(t, files)
	g := graph.New()
	p := newLineParser()
	r := resolver.New(ws.Root, resolver.Options{})
	cfg = cfg.withDefaults()
	src := &deniedSource{DiskSource: DiskSource{Root: ws.Root}, denied: make(map[string]bool)}
	ex := NewExtractor(src, p, r, cfg.MaxFileSizeBytes)
	store := newMemStore()
	u := NewIndexUpdater(ws.Root, g, ex, r, walkLister{root: ws.Root}, store, cfg, nil)
	return &harness{ws: ws, graph: g, parser: p, source: src, store: store, updater: u}
}

func (h *harness) rebuild(t *testing.T) DeltaStats {
	t.Helper()
	stats, err := h.updater.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	return stats
}

func (h *harness) apply(t *testing.T, events ...ChangeEvent) DeltaStats {
	t.Helper()
	stats, err := h.updater.ApplyChanges(context.Background(), events)
	if err != nil {
		t.Fatalf("ApplyChanges: %v", err)
	}
	return stats
}

func edgeTo(t *testing.T, g *graph.Graph, src, raw string) graph.ImportEdge {
	t.Helper()
	facts, ok := g.Facts(src)
	if !ok {
		t.Fatalf("%s not in graph", src)
	}
	for _, e := range facts.Edges {
		if e.Raw == raw {
			return e
		}
	}
	t.Fatalf("%s has no edge for %q: %+v", src, raw, facts.Edges)
	return graph.ImportEdge{}
}

func saved(p string, kind ChangeKind) ChangeEvent {
	return ChangeEvent{Path: p, Kind: kind, Saved: true}
}
