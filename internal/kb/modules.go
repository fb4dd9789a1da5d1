package kb

import (
	"sort"
	"strconv"
	"strings"

	"codekb/internal/graph"
)

// cluster is a directory of files with its import traffic to other directories.
type cluster struct {
	dir       string
	files     int
	symbols   int
	fanIn     int
	fanOut    int
	dependsOn map[string]int
	usedBy    map[string]int
}

func buildClusters(snap *graph.Snapshot) []*cluster {
	facts := snap.AllFacts()
	byDir := make(map[string]*cluster)
	get := func(d string) *cluster {
		c, ok := byDir[d]
		if !ok {
			c = &cluster{dir: d, dependsOn: make(map[string]int), usedBy: make(map[string]int)}
			byDir[d] = c
		}
		return c
	}

	for _, f := range facts {
		c := get(dirOf(f.File.Path))
		c.files++
		c.symbols += len(exported(f.Symbols))
	}
	for _, e := range dirEdges(snap, facts) {
		from, to := get(e.from), get(e.to)
		from.fanOut += e.count
		from.dependsOn[e.to] += e.count
		to.fanIn += e.count
		to.usedBy[e.from] += e.count
	}

	out := make([]*cluster, 0, len(byDir))
	for _, c := range byDir {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].fanIn != out[j].fanIn {
			return out[i].fanIn > out[j].fanIn
		}
		return out[i].dir < out[j].dir
	})
	return out
}

func renderModules(snap *graph.Snapshot, opts Options) Report {
	w := newBudgetWriter(opts.ModulesChars)
	w.Line("# Modules")
	w.Blank()

	clusters := buildClusters(snap)
	if len(clusters) == 0 {
		w.Line("No source files.")
		return newReport(ModulesFile, w)
	}

	w.Line("| Directory | Files | Exported symbols | Fan-in | Fan-out |")
	w.Line("|-----------|-------|------------------|--------|---------|")
	for _, c := range clusters {
		w.Linef("| `%s` | %d | %d | %d | %d |", displayDir(c.dir), c.files, c.symbols, c.fanIn, c.fanOut)
	}
	w.Blank()

	for _, c := range clusters {
		if len(c.dependsOn) == 0 && len(c.usedBy) == 0 {
			continue
		}
		w.Linef("## `%s`", displayDir(c.dir))
		w.Blank()
		if len(c.dependsOn) > 0 {
			w.Linef("- Depends on: %s", joinCounts(c.dependsOn))
		}
		if len(c.usedBy) > 0 {
			w.Linef("- Used by: %s", joinCounts(c.usedBy))
		}
		w.Blank()
	}
	return newReport(ModulesFile, w)
}

func joinCounts(m map[string]int) string {
	dirs := make([]string, 0, len(m))
	for d := range m {
		dirs = append(dirs, d)
	}
	sort.Slice(dirs, func(i, j int) bool {
		if m[dirs[i]] != m[dirs[j]] {
			return m[dirs[i]] > m[dirs[j]]
		}
		return dirs[i] < dirs[j]
	})
	parts := make([]string, 0, len(dirs))
	for _, d := range dirs {
		parts = append(parts, "`"+displayDir(d)+"` ("+itoa(m[d])+")")
	}
	return strings.Join(parts, ", ")
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
