package workspace

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"codekb/internal/config"
	kberrors "codekb/internal/errors"
	"codekb/internal/incremental"
	"codekb/internal/kb"
	"codekb/internal/lang"
	"codekb/internal/parser"
	"codekb/internal/testutil"
	"codekb/internal/watcher"
)

// importParser reads "import x" lines and counts calls per file.
type importParser struct {
	mu    sync.Mutex
	calls map[string]int
}

func newImportParser() *importParser {
	return &importParser{calls: make(map[string]int)}
}

func (p *importParser) Parse(_ context.Context, _ lang.Language, rel string, text []byte) parser.Result {
	p.mu.Lock()
	p.calls[rel]++
	p.mu.Unlock()

	var res parser.Result
	sc := bufio.NewScanner(bytes.NewReader(text))
	for sc.Scan() {
		if f := strings.Fields(sc.Text()); len(f) == 2 && f[0] == "import" {
			res.Imports = append(res.Imports, f[1])
		}
	}
	return res
}

func (p *importParser) Calls() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int, len(p.calls))
	for k, v := range p.calls {
		out[k] = v
	}
	return out
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Logging.File = false
	cfg.Index.DebounceMs = int(time.Hour / time.Millisecond)
	return cfg
}

func openSession(t *testing.T, root string, cfg *config.Config, p *importParser) *Session {
	t.Helper()
	s, err := Open(context.Background(), root, Options{Config: cfg, Parser: p})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustRebuild(t *testing.T, s *Session) incremental.DeltaStats {
	t.Helper()
	stats, err := s.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	return stats
}

func sampleFiles() map[string]string {
	return map[string]string{
		"main.py":  "import util\n",
		"util.py":  "",
		"other.py": "",
	}
}

func TestOpenNewWorkspace(t *testing.T) {
	ws := testutil.NewWorkspace(t, sampleFiles())
	s := openSession(t, ws.Root, testConfig(), newImportParser())

	if got := s.Status().String(); got != "stale(structural)" {
		t.Fatalf("status = %s, want stale(structural)", got)
	}
	stats := mustRebuild(t, s)
	if !stats.Full || stats.Files != 3 {
		t.Errorf("stats = %+v, want full rebuild of 3 files", stats)
	}
	if s.IsStale() {
		t.Error("session should be fresh after rebuild")
	}

	hubs := s.HubRanking(1)
	if len(hubs) != 1 || hubs[0].Path != "util.py" || hubs[0].InDegree != 1 {
		t.Errorf("HubRanking(1) = %+v", hubs)
	}
	if got := s.ImportedBy("./main.py"); !reflect.DeepEqual(got, []string{"util.py"}) {
		t.Errorf("ImportedBy(main.py) = %v", got)
	}
	if fp := s.Fingerprint(); fp == nil || fp.FileCount != 3 {
		t.Errorf("Fingerprint = %+v", fp)
	}
	for _, name := range []string{kb.ArchitectureFile, kb.SymbolsFile, kb.ModulesFile} {
		if _, err := os.Stat(filepath.Join(s.KBDir(), name)); err != nil {
			t.Errorf("knowledge base file %s: %v", name, err)
		}
	}
}

func TestReopenLoadsPersistedGraph(t *testing.T) {
	ws := testutil.NewWorkspace(t, sampleFiles())
	cfg := testConfig()

	first, err := Open(context.Background(), ws.Root, Options{Config: cfg, Parser: newImportParser()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	mustRebuild(t, first)
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	p := newImportParser()
	s := openSession(t, ws.Root, cfg, p)
	if !s.Startup().Fresh || s.IsStale() {
		t.Fatalf("startup = %+v, want fresh", s.Startup())
	}
	if got := s.ImportersOf("util.py"); !reflect.DeepEqual(got, []string{"main.py"}) {
		t.Errorf("ImportersOf(util.py) = %v, want [main.py]", got)
	}
	if calls := p.Calls(); len(calls) != 0 {
		t.Errorf("reopening parsed files: %v", calls)
	}
}

func TestReopenAfterOfflineChange(t *testing.T) {
	ws := testutil.NewWorkspace(t, sampleFiles())
	cfg := testConfig()

	first, err := Open(context.Background(), ws.Root, Options{Config: cfg, Parser: newImportParser()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	mustRebuild(t, first)
	_ = first.Close()

	ws.Write("other.py", "import util\n")
	ws.Touch("other.py", 2*time.Second)

	p := newImportParser()
	s := openSession(t, ws.Root, cfg, p)
	st := s.Status()
	if st.String() != "stale(structural)" || st.Pending != 1 {
		t.Fatalf("status = %+v, want stale(structural) with 1 pending", st)
	}

	stats := mustRebuild(t, s)
	if stats.Full || stats.Modified != 1 {
		t.Errorf("stats = %+v, want one incremental modification", stats)
	}
	if got := s.GraphSnapshot().HubScore("util.py"); got != 2 {
		t.Errorf("HubScore(util.py) = %d, want 2", got)
	}
	if calls := p.Calls(); !reflect.DeepEqual(calls, map[string]int{"other.py": 1}) {
		t.Errorf("parsed = %v, want only other.py", calls)
	}
}

func TestNotifyThenRebuild(t *testing.T) {
	ws := testutil.NewWorkspace(t, sampleFiles())
	s := openSession(t, ws.Root, testConfig(), newImportParser())
	mustRebuild(t, s)

	var mu sync.Mutex
	var states []incremental.State
	s.Subscribe(func(tr incremental.Transition) {
		mu.Lock()
		states = append(states, tr.To.State)
		mu.Unlock()
	})

	ws.Write("lib/new.py", "import util\n")
	s.Notify(incremental.ChangeEvent{Path: "lib/new.py", Kind: incremental.ChangeCreated, Saved: true})
	if !s.IsStale() {
		t.Fatal("create should make the session stale")
	}
	mustRebuild(t, s)

	if got := s.ImportersOf("util.py"); !reflect.DeepEqual(got, []string{"lib/new.py", "main.py"}) {
		t.Errorf("ImportersOf(util.py) = %v", got)
	}
	mu.Lock()
	defer mu.Unlock()
	want := []incremental.State{incremental.StateStale, incremental.StateRebuilding, incremental.StateFresh}
	if !reflect.DeepEqual(states, want) {
		t.Errorf("transitions = %v, want %v", states, want)
	}
}

func TestExcludedChangesNeverIndexed(t *testing.T) {
	files := sampleFiles()
	files[".gitignore"] = "scratch.py\n"
	ws := testutil.NewWorkspace(t, files)
	p := newImportParser()
	s := openSession(t, ws.Root, testConfig(), p)
	mustRebuild(t, s)

	ws.Write("node_modules/vendored.py", "import util\n")
	ws.Write("scratch.py", "import util\n")
	events := []incremental.ChangeEvent{
		{Path: "node_modules/vendored.py", Kind: incremental.ChangeCreated, Saved: true},
		{Path: "scratch.py", Kind: incremental.ChangeCreated, Saved: true},
	}
	s.Notify(events...)
	if s.IsStale() {
		t.Fatalf("status = %s, excluded files must not make the session stale", s.Status())
	}

	// Events that reach the index directly are filtered there too.
	s.tracker.Enqueue(incremental.ReasonStructural, events)
	mustRebuild(t, s)

	snap := s.GraphSnapshot()
	for _, ev := range events {
		if _, ok := snap.Facts(ev.Path); ok {
			t.Errorf("%s added to the graph", ev.Path)
		}
		if n := p.Calls()[ev.Path]; n != 0 {
			t.Errorf("%s parsed %d times", ev.Path, n)
		}
	}
	if got := s.ImportersOf("util.py"); !reflect.DeepEqual(got, []string{"main.py"}) {
		t.Errorf("ImportersOf(util.py) = %v, want [main.py]", got)
	}
	if fp := s.Fingerprint(); fp == nil || fp.FileCount != 3 {
		t.Errorf("Fingerprint = %+v, want 3 files", fp)
	}
}

func TestForceRebuild(t *testing.T) {
	ws := testutil.NewWorkspace(t, sampleFiles())
	p := newImportParser()
	s := openSession(t, ws.Root, testConfig(), p)
	mustRebuild(t, s)

	stats, err := s.ForceRebuild(context.Background())
	if err != nil {
		t.Fatalf("ForceRebuild: %v", err)
	}
	if !stats.Full {
		t.Errorf("stats = %+v, want full rebuild", stats)
	}
	if got := p.Calls()["main.py"]; got != 2 {
		t.Errorf("main.py parsed %d times, want 2", got)
	}
}

func TestSkipCounts(t *testing.T) {
	ws := testutil.NewWorkspace(t, map[string]string{
		"small.py": "import big\n",
		"big.py":   strings.Repeat("#", 512) + "\n",
	})
	cfg := testConfig()
	cfg.Parser.MaxFileSizeBytes = 128
	s := openSession(t, ws.Root, cfg, newImportParser())

	stats := mustRebuild(t, s)
	if got := stats.Skips.String(); got != "1 file could not be analyzed (reasons: size_limit: 1)" {
		t.Errorf("summary = %q", got)
	}
	counts, err := s.SkipCounts()
	if err != nil {
		t.Fatalf("SkipCounts: %v", err)
	}
	if counts[parser.SkipSizeLimit] != 1 || counts.Total() != 1 {
		t.Errorf("SkipCounts = %v", counts)
	}
}

func TestOpenErrors(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "missing"), Options{Config: testConfig()})
	if !kberrors.Is(err, kberrors.WorkspaceUnreadable) {
		t.Errorf("missing root: err = %v, want WORKSPACE_UNREADABLE", err)
	}

	ws := testutil.NewWorkspace(t, sampleFiles())
	_, err = Open(context.Background(), ws.Abs("main.py"), Options{Config: testConfig()})
	if !kberrors.Is(err, kberrors.WorkspaceUnreadable) {
		t.Errorf("file root: err = %v, want WORKSPACE_UNREADABLE", err)
	}

	cfg := testConfig()
	cfg.Index.Workers = 0
	_, err = Open(context.Background(), ws.Root, Options{Config: cfg})
	if !kberrors.Is(err, kberrors.ConfigInvalid) {
		t.Errorf("bad config: err = %v, want CONFIG_INVALID", err)
	}
}

func TestWatchFeedsTracker(t *testing.T) {
	ws := testutil.NewWorkspace(t, sampleFiles())
	cfg := testConfig()
	cfg.Index.DebounceMs = 20
	s := openSession(t, ws.Root, cfg, newImportParser())
	mustRebuild(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Watch(ctx); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	ws.Write("pkg/feature.py", "import util\n")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if reflect.DeepEqual(s.ImportersOf("util.py"), []string{"main.py", "pkg/feature.py"}) && !s.IsStale() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("watcher change not applied: importers = %v, status = %s", s.ImportersOf("util.py"), s.Status())
}

func TestToChangeEvents(t *testing.T) {
	got := toChangeEvents([]watcher.Event{
		{Type: watcher.EventCreate, Path: "a.py"},
		{Type: watcher.EventModify, Path: "b.py"},
		{Type: watcher.EventDelete, Path: "c"},
	})
	want := []incremental.ChangeEvent{
		{Path: "a.py", Kind: incremental.ChangeCreated, Saved: true},
		{Path: "b.py", Kind: incremental.ChangeModified, Saved: true},
		{Path: "c", Kind: incremental.ChangeDeleted},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("toChangeEvents = %+v, want %+v", got, want)
	}
}
