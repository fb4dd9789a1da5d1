package graph

import (
	"reflect"
	"testing"

	"codekb/internal/lang"
	"codekb/internal/parser"
)

// facts builds a python file importing the given resolved targets.
func facts(path string, targets ...string) FileFacts {
	f := FileFacts{
		File:    FileNode{Path: path, Language: lang.LangPython},
		Symbols: []parser.Symbol{{ID: path, Name: path, Kind: parser.KindModule, File: path, Exported: true, Line: 1}},
	}
	for _, t := range targets {
		f.Imports = append(f.Imports, t)
		f.Edges = append(f.Edges, ImportEdge{Src: path, Dst: t, Raw: t, Resolved: true})
	}
	return f
}

func mustVerify(t *testing.T, g *Graph) {
	t.Helper()
	if err := g.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestFreshBuildScenario(t *testing.T) {
	g := New()
	g.UpsertFile(facts("main.py", "util.py"))
	g.UpsertFile(facts("util.py"))
	g.UpsertFile(facts("unused.py"))
	mustVerify(t, g)

	st := g.Stats()
	if st.Files != 3 || st.Edges != 1 {
		t.Errorf("Stats = %+v, want 3 files 1 edge", st)
	}
	for path, want := range map[string]int{"util.py": 1, "main.py": 0, "unused.py": 0} {
		if got := g.HubScore(path); got != want {
			t.Errorf("HubScore(%s) = %d, want %d", path, got, want)
		}
	}
}

func TestIncrementalEditScenario(t *testing.T) {
	g := New()
	g.UpsertFile(facts("main.py", "util.py"))
	g.UpsertFile(facts("util.py"))
	g.UpsertFile(facts("unused.py"))
	before, _ := g.Facts("main.py")

	g.UpsertFile(facts("unused.py", "util.py"))
	mustVerify(t, g)

	if got := g.HubScore("util.py"); got != 2 {
		t.Errorf("HubScore(util) = %d, want 2", got)
	}
	after, _ := g.Facts("main.py")
	if !reflect.DeepEqual(before, after) {
		t.Errorf("main.py facts changed: %+v -> %+v", before, after)
	}
}

func TestDeletionScenario(t *testing.T) {
	g := New()
	g.UpsertFile(facts("main.py", "util.py"))
	g.UpsertFile(facts("util.py"))
	g.UpsertFile(facts("unused.py", "util.py"))

	g.RemoveFile("util.py")
	mustVerify(t, g)

	if got := g.ImportersOf("util.py"); len(got) != 0 {
		t.Errorf("ImportersOf(util) = %v, want empty", got)
	}
	if got := g.HubScore("util.py"); got != 0 {
		t.Errorf("HubScore(util) = %d, want 0", got)
	}
	for _, p := range []string{"main.py", "unused.py"} {
		if !g.HasFile(p) {
			t.Errorf("%s should remain", p)
		}
		if got := g.ImportedBy(p); !reflect.DeepEqual(got, []string{"util.py"}) {
			t.Errorf("ImportedBy(%s) = %v, want dangling [util.py]", p, got)
		}
	}
	if st := g.Stats(); st.Dangling != 2 {
		t.Errorf("Dangling = %d, want 2", st.Dangling)
	}

	// The dangling edges bind again when the file reappears.
	g.UpsertFile(facts("util.py"))
	if got := g.ImportersOf("util.py"); !reflect.DeepEqual(got, []string{"main.py", "unused.py"}) {
		t.Errorf("ImportersOf after re-create = %v", got)
	}
}

func TestUpsertIdempotent(t *testing.T) {
	g := New()
	g.UpsertFile(facts("util.py"))
	f := facts("a.py", "util.py", "util.py")

	g.UpsertFile(f)
	once := g.Snapshot()
	g.UpsertFile(f)
	twice := g.Snapshot()
	mustVerify(t, g)

	if !reflect.DeepEqual(once.Files, twice.Files) || !reflect.DeepEqual(once.Edges, twice.Edges) {
		t.Error("second upsert changed files or edges")
	}
	if got := g.HubScore("util.py"); got != 1 {
		t.Errorf("HubScore with duplicate edges = %d, want 1", got)
	}
	if !reflect.DeepEqual(once.HubRanking(0), twice.HubRanking(0)) {
		t.Error("hub ranking changed")
	}
}

func TestReverseIndexConsistency(t *testing.T) {
	g := New()
	steps := []func(){
		func() { g.UpsertFile(facts("a.py", "b.py", "c.py")) },
		func() { g.UpsertFile(facts("b.py", "c.py")) },
		func() { g.UpsertFile(facts("c.py", "a.py")) },
		func() { g.UpsertFile(facts("a.py", "c.py")) },
		func() { g.RemoveFile("c.py") },
		func() { g.RemoveFile("c.py") },
		func() { g.RemoveFile("missing.py") },
		func() { g.Relink("b.py", nil) },
		func() { g.UpsertFile(facts("c.py")) },
	}
	for i, step := range steps {
		step()
		if err := g.Verify(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		for _, p := range g.Paths() {
			for _, q := range g.ImportersOf(p) {
				found := false
				for _, dst := range g.ImportedBy(q) {
					if dst == p {
						found = true
					}
				}
				if !found {
					t.Fatalf("step %d: %s in ImportersOf(%s) without an edge", i, q, p)
				}
			}
		}
	}
}

func TestUnresolvedEdgesIgnoredByHubs(t *testing.T) {
	g := New()
	f := facts("a.py")
	f.Imports = []string{"requests"}
	f.Edges = []ImportEdge{{Src: "a.py", Dst: "requests", Raw: "requests"}}
	g.UpsertFile(f)
	g.UpsertFile(facts("requests"))

	if got := g.HubScore("requests"); got != 0 {
		t.Errorf("unresolved edge counted: %d", got)
	}
	if got := g.UnresolvedEdges(); len(got) != 1 || got[0].Raw != "requests" {
		t.Errorf("UnresolvedEdges = %+v", got)
	}
}

func TestApplyInverseRestores(t *testing.T) {
	g := New()
	g.UpsertFile(facts("a.py", "b.py"))
	g.UpsertFile(facts("b.py"))
	before := g.Snapshot()

	inverse := g.Apply(Batch{
		{Kind: OpUpsert, Facts: facts("a.py")},
		{Kind: OpUpsert, Facts: facts("c.py", "b.py")},
		{Kind: OpRemove, Path: "b.py"},
		{Kind: OpUpsert, Facts: facts("a.py", "c.py")},
	})
	mustVerify(t, g)
	g.Apply(inverse)
	mustVerify(t, g)

	after := g.Snapshot()
	if !reflect.DeepEqual(before.Files, after.Files) || !reflect.DeepEqual(before.Edges, after.Edges) {
		t.Errorf("rollback mismatch:\nbefore %+v\nafter  %+v", before.Edges, after.Edges)
	}
}

func TestHubRankingOrder(t *testing.T) {
	g := New()
	g.UpsertFile(facts("a.py", "hub.py", "b.py"))
	g.UpsertFile(facts("c.py", "hub.py", "b.py"))
	g.UpsertFile(facts("d.py", "hub.py"))
	g.UpsertFile(facts("hub.py"))
	g.UpsertFile(facts("b.py"))

	got := g.HubRanking(3)
	want := []HubEntry{{"hub.py", 3}, {"b.py", 2}, {"a.py", 0}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("HubRanking = %v, want %v", got, want)
	}
}

func TestSnapshotCachedUntilMutation(t *testing.T) {
	g := New()
	g.UpsertFile(facts("a.py"))

	s1 := g.Snapshot()
	if s2 := g.Snapshot(); s1 != s2 {
		t.Error("expected cached snapshot")
	}

	g.UpsertFile(facts("b.py", "a.py"))
	s3 := g.Snapshot()
	if s3 == s1 {
		t.Error("snapshot should be rebuilt after mutation")
	}
	if len(s1.Files) != 1 || s1.HubScore("a.py") != 0 {
		t.Error("old snapshot must not observe later mutations")
	}
	if s3.HubScore("a.py") != 1 {
		t.Errorf("new snapshot HubScore = %d", s3.HubScore("a.py"))
	}
}

func TestReplace(t *testing.T) {
	g := New()
	g.UpsertFile(facts("old.py"))

	fresh := New()
	fresh.UpsertFile(facts("new.py"))
	g.Replace(fresh)

	if g.HasFile("old.py") || !g.HasFile("new.py") {
		t.Errorf("Paths = %v", g.Paths())
	}
	fresh.UpsertFile(facts("later.py"))
	if g.HasFile("later.py") {
		t.Error("Replace must copy, not alias")
	}
}

func TestVerifyDetectsDivergence(t *testing.T) {
	g := New()
	g.UpsertFile(facts("a", "b"))
	g.UpsertFile(facts("b"))

	g.mu.Lock()
	delete(g.st.in, "b")
	g.mu.Unlock()

	if err := g.Verify(); err == nil {
		t.Error("expected Verify to report divergence")
	}
}
