package kb

import (
	"path"
	"sort"
	"strings"
	"time"

	"codekb/internal/graph"
	"codekb/internal/index"
)

// dirOf returns the directory a file belongs to, "." for the root.
func dirOf(p string) string {
	return path.Dir(p)
}

func displayDir(d string) string {
	if d == "." {
		return "(root)"
	}
	return d + "/"
}

type dirEdge struct {
	from, to string
	count    int
}

// dirEdges aggregates resolved edges between existing files by directory.
func dirEdges(snap *graph.Snapshot, facts []graph.FileFacts) []dirEdge {
	counts := make(map[[2]string]int)
	for _, f := range facts {
		from := dirOf(f.File.Path)
		for _, dst := range snap.ImportedBy(f.File.Path) {
			if _, ok := snap.Facts(dst); !ok {
				continue
			}
			to := dirOf(dst)
			if to != from {
				counts[[2]string{from, to}]++
			}
		}
	}
	out := make([]dirEdge, 0, len(counts))
	for k, c := range counts {
		out = append(out, dirEdge{from: k[0], to: k[1], count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		if out[i].from != out[j].from {
			return out[i].from < out[j].from
		}
		return out[i].to < out[j].to
	})
	return out
}

type rawCount struct {
	raw   string
	count int
}

func unresolvedImports(facts []graph.FileFacts) []rawCount {
	counts := make(map[string]int)
	for _, f := range facts {
		for _, e := range f.Edges {
			if !e.Resolved {
				counts[e.Raw]++
			}
		}
	}
	out := make([]rawCount, 0, len(counts))
	for raw, c := range counts {
		out = append(out, rawCount{raw: raw, count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].raw < out[j].raw
	})
	return out
}

func renderArchitecture(snap *graph.Snapshot, fp *index.Fingerprint, opts Options) Report {
	w := newBudgetWriter(opts.ArchitectureChars)
	facts := snap.AllFacts()
	st := snap.Stats()

	w.Line("# Architecture")
	w.Blank()
	w.Linef("- Files: %d", st.Files)
	w.Linef("- Imports: %d (%d resolved, %d unresolved, %d dangling)", st.Edges, st.Resolved, st.Unresolved, st.Dangling)
	w.Linef("- Symbols: %d", st.Symbols)
	if fp != nil && fp.Hash != "" {
		hash := fp.Hash
		if len(hash) > 12 {
			hash = hash[:12]
		}
		w.Linef("- Build: `%s` at %s", hash, fp.BuiltAt.UTC().Format(time.RFC3339))
	}
	w.Blank()

	w.Line("## Hub files")
	w.Blank()
	hubs := 0
	for _, h := range snap.HubRanking(opts.TopHubs) {
		if h.InDegree == 0 {
			break
		}
		if hubs == 0 {
			w.Line("| File | Importers |")
			w.Line("|------|-----------|")
		}
		w.Linef("| `%s` | %d |", h.Path, h.InDegree)
		hubs++
	}
	if hubs == 0 {
		w.Line("No file is imported by another file.")
	}
	w.Blank()

	w.Line("## Cycles")
	w.Blank()
	cycles := snap.DetectCycles()
	if len(cycles) == 0 {
		w.Line("No import cycles.")
	}
	for _, c := range cycles {
		if c.SelfLoop {
			w.Linef("- `%s` imports itself", c.Files[0])
			continue
		}
		names := make([]string, 0, len(c.Files)+1)
		for _, f := range c.Files {
			names = append(names, "`"+f+"`")
		}
		names = append(names, names[0])
		w.Linef("- %s", strings.Join(names, " → "))
	}
	w.Blank()

	w.Line("## Import structure")
	w.Blank()
	edges := dirEdges(snap, facts)
	if len(edges) == 0 {
		w.Line("No imports cross directory boundaries.")
	}
	for _, e := range edges {
		w.Linef("- %s → %s (%d)", displayDir(e.from), displayDir(e.to), e.count)
	}

	if raws := unresolvedImports(facts); len(raws) > 0 {
		w.Blank()
		w.Line("## External and unresolved imports")
		w.Blank()
		for _, r := range raws {
			w.Linef("- `%s` (%d)", r.raw, r.count)
		}
	}

	return newReport(ArchitectureFile, w)
}
