package incremental

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	kberrors "codekb/internal/errors"
	"codekb/internal/graph"
	"codekb/internal/lang"
	"codekb/internal/parser"
)

func threeFiles() map[string]string {
	return map[string]string{
		"main.py":  "import util\n",
		"util.py":  "def helper():\n",
		"other.py": "def standalone():\n",
	}
}

func TestRebuildBuildsGraph(t *testing.T) {
	h := newHarness(t, threeFiles(), Config{})
	stats := h.rebuild(t)

	if !stats.Full || stats.Parsed != 3 || stats.Files != 3 {
		t.Errorf("stats = %+v, want full rebuild of 3 files", stats)
	}
	st := h.graph.Stats()
	if st.Files != 3 || st.Edges != 1 {
		t.Fatalf("graph stats = %+v, want 3 files and 1 edge", st)
	}
	for p, want := range map[string]int{"util.py": 1, "main.py": 0, "other.py": 0} {
		if got := h.graph.HubScore(p); got != want {
			t.Errorf("HubScore(%s) = %d, want %d", p, got, want)
		}
	}
	if h.store.fullSaves != 1 {
		t.Errorf("full saves = %d, want 1", h.store.fullSaves)
	}
	fp := h.updater.Fingerprint()
	if fp == nil || fp.FileCount != 3 || fp.BuildID == "" {
		t.Errorf("fingerprint = %+v", fp)
	}
}

func TestApplyChangesReparsesOnlyChangedFiles(t *testing.T) {
	h := newHarness(t, threeFiles(), Config{})
	h.rebuild(t)

	h.ws.Write("other.py", "import util\n")
	stats := h.apply(t, saved("other.py", ChangeModified))

	if stats.Parsed != 1 || stats.Modified != 1 || stats.Created != 0 {
		t.Errorf("stats = %+v, want one modified file", stats)
	}
	if got := h.graph.HubScore("util.py"); got != 2 {
		t.Errorf("HubScore(util.py) = %d, want 2", got)
	}
	if got := h.parser.Calls("main.py"); got != 1 {
		t.Errorf("main.py parsed %d times, want 1", got)
	}
	if got := h.parser.Calls("util.py"); got != 1 {
		t.Errorf("util.py parsed %d times, want 1", got)
	}
	if h.store.deltas != 1 {
		t.Errorf("deltas = %d, want 1", h.store.deltas)
	}
}

func TestApplyChangesDeletion(t *testing.T) {
	h := newHarness(t, threeFiles(), Config{})
	h.rebuild(t)

	h.ws.Remove("util.py")
	stats := h.apply(t, ChangeEvent{Path: "util.py", Kind: ChangeDeleted})

	if stats.Deleted != 1 {
		t.Errorf("deleted = %d, want 1", stats.Deleted)
	}
	if h.graph.HasFile("util.py") {
		t.Error("util.py still in graph")
	}
	if importers := h.graph.ImportersOf("util.py"); len(importers) != 0 {
		t.Errorf("ImportersOf(util.py) = %v, want none", importers)
	}
	e := edgeTo(t, h.graph, "main.py", "util")
	if e.Resolved {
		t.Errorf("edge %+v should no longer be resolved", e)
	}
	if got := h.parser.Calls("main.py"); got != 1 {
		t.Errorf("main.py parsed %d times, want 1", got)
	}
	if _, ok := h.store.facts["util.py"]; ok {
		t.Error("util.py still in store")
	}
}

func TestCreatedFileBindsUnresolvedImport(t *testing.T) {
	h := newHarness(t, map[string]string{
		"main.py": "import helpers\n",
	}, Config{})
	h.rebuild(t)

	if e := edgeTo(t, h.graph, "main.py", "helpers"); e.Resolved {
		t.Fatalf("edge %+v resolved before helpers.py exists", e)
	}

	h.ws.Write("helpers.py", "def h():\n")
	stats := h.apply(t, saved("helpers.py", ChangeCreated))

	if stats.Created != 1 || stats.Relinked != 1 {
		t.Errorf("stats = %+v, want 1 created and 1 relinked", stats)
	}
	e := edgeTo(t, h.graph, "main.py", "helpers")
	if !e.Resolved || e.Dst != "helpers.py" {
		t.Errorf("edge = %+v, want resolved to helpers.py", e)
	}
	if got := h.parser.Calls("main.py"); got != 1 {
		t.Errorf("main.py parsed %d times, want 1", got)
	}
}

func TestCreatedModuleShadowsPackage(t *testing.T) {
	h := newHarness(t, map[string]string{
		"main.py":         "import pkg\n",
		"pkg/__init__.py": "",
	}, Config{})
	h.rebuild(t)

	if e := edgeTo(t, h.graph, "main.py", "pkg"); e.Dst != "pkg/__init__.py" {
		t.Fatalf("edge = %+v, want pkg/__init__.py", e)
	}

	h.ws.Write("pkg.py", "")
	stats := h.apply(t, saved("pkg.py", ChangeCreated))

	if stats.Relinked != 1 {
		t.Errorf("relinked = %d, want 1", stats.Relinked)
	}
	if e := edgeTo(t, h.graph, "main.py", "pkg"); e.Dst != "pkg.py" {
		t.Errorf("edge = %+v, want pkg.py", e)
	}

	h.ws.Remove("pkg.py")
	h.apply(t, ChangeEvent{Path: "pkg.py", Kind: ChangeDeleted})
	if e := edgeTo(t, h.graph, "main.py", "pkg"); e.Dst != "pkg/__init__.py" || !e.Resolved {
		t.Errorf("edge = %+v, want pkg/__init__.py again", e)
	}
}

func TestDirectoryDelete(t *testing.T) {
	h := newHarness(t, map[string]string{
		"main.py":  "import lib.a\n",
		"lib/a.py": "import lib.b\n",
		"lib/b.py": "",
	}, Config{})
	h.rebuild(t)

	h.ws.Remove("lib")
	stats := h.apply(t, ChangeEvent{Path: "lib", Kind: ChangeDeleted})

	if stats.Deleted != 2 {
		t.Errorf("deleted = %d, want 2", stats.Deleted)
	}
	if got := h.graph.Paths(); !reflect.DeepEqual(got, []string{"main.py"}) {
		t.Errorf("paths = %v, want [main.py]", got)
	}
}

func TestBulkChange(t *testing.T) {
	h := newHarness(t, map[string]string{"a.py": "", "b.py": "", "c.py": ""}, Config{BulkThreshold: 2})
	h.rebuild(t)

	for _, p := range []string{"a.py", "b.py", "c.py"} {
		h.ws.Write(p, "import x\n")
	}
	stats := h.apply(t,
		saved("a.py", ChangeModified),
		saved("b.py", ChangeModified),
		saved("c.py", ChangeModified),
	)
	if !stats.Bulk || stats.Parsed != 3 {
		t.Errorf("stats = %+v, want bulk pass over 3 files", stats)
	}
}

func TestCoalesce(t *testing.T) {
	in := []ChangeEvent{
		{Path: "a.py", Kind: ChangeCreated},
		{Path: "b.py", Kind: ChangeModified},
		{Path: ""},
		{Path: "a.py", Kind: ChangeModified},
		{Path: "b.py", Kind: ChangeDeleted},
	}
	want := []ChangeEvent{
		{Path: "a.py", Kind: ChangeModified},
		{Path: "b.py", Kind: ChangeDeleted},
	}
	if got := coalesce(in); !reflect.DeepEqual(got, want) {
		t.Errorf("coalesce = %+v, want %+v", got, want)
	}
}

func TestCreateThenDeleteBeforeApply(t *testing.T) {
	h := newHarness(t, threeFiles(), Config{})
	h.rebuild(t)

	stats := h.apply(t,
		saved("tmp.py", ChangeCreated),
		ChangeEvent{Path: "tmp.py", Kind: ChangeDeleted},
	)
	if stats.Created != 0 || stats.Deleted != 0 || stats.Parsed != 0 {
		t.Errorf("stats = %+v, want no-op", stats)
	}
	if h.graph.HasFile("tmp.py") {
		t.Error("tmp.py should not be in graph")
	}
}

func TestStoreFailureLeavesGraphUntouched(t *testing.T) {
	h := newHarness(t, threeFiles(), Config{})
	h.rebuild(t)
	before := h.updater.Fingerprint()
	version := h.graph.Version()

	h.store.setFail(true)
	h.ws.Write("other.py", "import util\n")
	h.ws.Remove("main.py")
	_, err := h.updater.ApplyChanges(context.Background(), []ChangeEvent{
		saved("other.py", ChangeModified),
		{Path: "main.py", Kind: ChangeDeleted},
	})
	if !errors.Is(err, errStoreDown) {
		t.Fatalf("err = %v, want store failure", err)
	}

	if got := h.graph.ImportersOf("util.py"); !reflect.DeepEqual(got, []string{"main.py"}) {
		t.Errorf("ImportersOf(util.py) = %v after failed commit, want [main.py]", got)
	}
	if !h.graph.HasFile("main.py") {
		t.Error("main.py should still be in the graph")
	}
	if facts, _ := h.graph.Facts("other.py"); len(facts.Imports) != 0 {
		t.Errorf("other.py imports = %v after failed commit", facts.Imports)
	}
	if got := h.graph.Version(); got != version {
		t.Errorf("graph version = %d, want %d: the graph was mutated before the commit", got, version)
	}
	if h.updater.Fingerprint() != before {
		t.Error("fingerprint advanced despite failed commit")
	}
	if err := h.graph.Verify(); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestExcludedFileIgnored(t *testing.T) {
	h := newHarness(t, threeFiles(), Config{})
	h.rebuild(t)

	h.ws.Write("node_modules/vendored.py", "import util\n")
	stats := h.apply(t, saved("node_modules/vendored.py", ChangeCreated))

	if stats.Created != 0 || stats.Parsed != 0 {
		t.Errorf("stats = %+v, want nothing indexed", stats)
	}
	if h.graph.HasFile("node_modules/vendored.py") {
		t.Error("excluded file added to the graph")
	}
	if got := h.graph.HubScore("util.py"); got != 1 {
		t.Errorf("HubScore(util.py) = %d, want 1", got)
	}
	if got := h.parser.Calls("node_modules/vendored.py"); got != 0 {
		t.Errorf("excluded file parsed %d times", got)
	}
	if _, ok := h.store.facts["node_modules/vendored.py"]; ok {
		t.Error("excluded file stored")
	}
}

func TestExcludedNodeRemoved(t *testing.T) {
	h := newHarness(t, threeFiles(), Config{})
	h.rebuild(t)

	// A node indexed before its directory became excluded.
	const stray = "node_modules/old.py"
	h.graph.UpsertFile(graph.FileFacts{
		File:    graph.FileNode{Path: stray, Language: lang.LangPython},
		Imports: []string{"util"},
		Edges:   []graph.ImportEdge{{Src: stray, Dst: "util.py", Raw: "util", Resolved: true}},
	})
	h.ws.Write(stray, "import util\n")

	stats := h.apply(t, saved(stray, ChangeModified))

	if stats.Deleted != 1 || stats.Parsed != 0 {
		t.Errorf("stats = %+v, want one removal and no parse", stats)
	}
	if h.graph.HasFile(stray) {
		t.Errorf("%s still in graph", stray)
	}
	if got := h.graph.ImportersOf("util.py"); !reflect.DeepEqual(got, []string{"main.py"}) {
		t.Errorf("ImportersOf(util.py) = %v, want [main.py]", got)
	}
}

func TestUnreadableFileTreatedAsDeleted(t *testing.T) {
	h := newHarness(t, threeFiles(), Config{})
	h.rebuild(t)

	h.source.deny("util.py")
	stats := h.apply(t, saved("util.py", ChangeModified))

	if stats.Deleted != 1 || stats.Modified != 0 {
		t.Errorf("stats = %+v, want util.py deleted", stats)
	}
	if got := stats.Skips[parser.SkipReadError]; got != 1 {
		t.Errorf("read_error skips = %d, want 1", got)
	}
	if h.graph.HasFile("util.py") {
		t.Error("unreadable util.py still in graph")
	}
	if importers := h.graph.ImportersOf("util.py"); len(importers) != 0 {
		t.Errorf("ImportersOf(util.py) = %v, want none", importers)
	}
	// The file is still on disk, so main.py keeps a dangling edge to it.
	if e := edgeTo(t, h.graph, "main.py", "util"); e.Dst != "util.py" {
		t.Errorf("edge = %+v, want it to point at util.py", e)
	}
	if st := h.graph.Stats(); st.Files != 2 || st.Dangling != 1 {
		t.Errorf("graph stats = %+v, want 2 files and 1 dangling edge", st)
	}
	if _, ok := h.store.facts["util.py"]; ok {
		t.Error("util.py still in store")
	}
}

func TestRebuildSkipsUnreadableFile(t *testing.T) {
	h := newHarness(t, threeFiles(), Config{})
	h.source.deny("other.py")

	stats := h.rebuild(t)

	if stats.Parsed != 2 || stats.Skips[parser.SkipReadError] != 1 {
		t.Errorf("stats = %+v, want 2 parsed and 1 read_error", stats)
	}
	if h.graph.HasFile("other.py") {
		t.Error("unreadable other.py added to the graph")
	}
}

func TestRebuildStoreFailureKeepsGraph(t *testing.T) {
	h := newHarness(t, threeFiles(), Config{})
	h.rebuild(t)

	h.store.setFail(true)
	h.ws.Write("new.py", "import util\n")
	if _, err := h.updater.Rebuild(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if h.graph.HasFile("new.py") {
		t.Error("failed rebuild must not swap the graph")
	}
}

func TestCancelledUpdate(t *testing.T) {
	h := newHarness(t, threeFiles(), Config{})
	h.rebuild(t)
	version := h.graph.Version()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h.ws.Write("other.py", "import util\n")
	_, err := h.updater.ApplyChanges(ctx, []ChangeEvent{saved("other.py", ChangeModified)})
	if !kberrors.Is(err, kberrors.RebuildCancelled) {
		t.Fatalf("err = %v, want REBUILD_CANCELLED", err)
	}
	if h.graph.Version() != version {
		t.Error("graph changed after cancellation")
	}

	_, err = h.updater.Rebuild(ctx)
	if !kberrors.Is(err, kberrors.RebuildCancelled) {
		t.Fatalf("Rebuild err = %v, want REBUILD_CANCELLED", err)
	}
	if h.graph.Version() != version {
		t.Error("graph changed after cancelled rebuild")
	}
}

func TestSizeLimitSkip(t *testing.T) {
	h := newHarness(t, map[string]string{
		"small.py": "import big\n",
		"big.py":   "import small\n" + strings.Repeat("#", 200) + "\n",
	}, Config{MaxFileSizeBytes: 64})
	stats := h.rebuild(t)

	if got := stats.Skips[parser.SkipSizeLimit]; got != 1 {
		t.Errorf("size_limit skips = %d, want 1", got)
	}
	want := "1 file could not be analyzed (reasons: size_limit: 1)"
	if got := stats.Skips.String(); got != want {
		t.Errorf("summary = %q, want %q", got, want)
	}
	if h.parser.Calls("big.py") != 0 {
		t.Error("oversized file should not be parsed")
	}

	node, ok := h.graph.File("big.py")
	if !ok || node.Skip != parser.SkipSizeLimit {
		t.Errorf("big.py node = %+v, %v", node, ok)
	}
	if got := h.graph.HubScore("big.py"); got != 1 {
		t.Errorf("skipped files stay importable: HubScore(big.py) = %d, want 1", got)
	}
}

func TestSkipSummaryString(t *testing.T) {
	s := SkipSummary{}
	if s.String() != "" {
		t.Errorf("empty summary = %q", s.String())
	}
	s.Add(parser.SkipNone)
	s.Add(parser.SkipParseError)
	s.Add(parser.SkipSizeLimit)
	s.Add(parser.SkipParseError)

	want := "3 files could not be analyzed (reasons: size_limit: 1, parse_error: 2)"
	if got := s.String(); got != want {
		t.Errorf("summary = %q, want %q", got, want)
	}
}

func TestFormatStats(t *testing.T) {
	out := FormatStats(DeltaStats{Modified: 2, Created: 1, Bulk: true, Skips: SkipSummary{parser.SkipReadError: 1}})
	for _, want := range []string{"Incremental update complete", "2 modified, 1 added", "bulk change", "read_error: 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatStats missing %q:\n%s", want, out)
		}
	}
}
