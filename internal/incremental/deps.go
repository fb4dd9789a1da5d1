package incremental

import (
	"path"
	"sort"

	"codekb/internal/graph"
	"codekb/internal/resolver"
)

// dependentsTracker finds the one-hop importers whose edges may bind
// differently after files appear or disappear. It never walks further than
// direct importers.
type dependentsTracker struct {
	graph    *graph.Graph
	resolver *resolver.Resolver
}

// affectedImporters returns the files outside changed that must be relinked.
// It must be called before the batch for created and deleted is applied.
func (d *dependentsTracker) affectedImporters(created, deleted []string, changed map[string]bool) []string {
	out := make(map[string]bool)
	add := func(src string) {
		if !changed[src] {
			out[src] = true
		}
	}

	// A deleted file's importers now dangle, and may bind to another candidate.
	for _, p := range deleted {
		for _, src := range d.graph.ImportersOf(p) {
			add(src)
		}
	}

	if len(created) > 0 {
		// Unresolved and dangling edges may now bind to a created file.
		for _, e := range d.graph.UnresolvedEdges() {
			if changed[e.Src] {
				continue
			}
			for _, p := range created {
				if d.resolver.Matches(e.Src, e.Raw, p) {
					add(e.Src)
					break
				}
			}
		}
		// A resolved edge may now bind more specifically, e.g. pkg.py created
		// next to pkg/__init__.py, or a new file joining an imported Go package.
		all := d.graph.Paths()
		for _, p := range created {
			for _, sib := range siblingsOf(p, all) {
				for _, src := range d.graph.ImportersOf(sib) {
					if changed[src] || out[src] {
						continue
					}
					if d.importMatches(src, p) {
						add(src)
					}
				}
			}
		}
	}

	list := make([]string, 0, len(out))
	for p := range out {
		list = append(list, p)
	}
	sort.Strings(list)
	return list
}

// siblingsOf lists graph files that live in the directory of p or in the
// directory p would shadow as a package.
func siblingsOf(p string, all []string) []string {
	dir := path.Dir(p)
	stem := p[:len(p)-len(path.Ext(p))]
	var out []string
	for _, f := range all {
		if f == p {
			continue
		}
		fd := path.Dir(f)
		if fd == dir || fd == stem {
			out = append(out, f)
		}
	}
	return out
}

func (d *dependentsTracker) importMatches(src, target string) bool {
	facts, ok := d.graph.Facts(src)
	if !ok {
		return false
	}
	for _, raw := range facts.Imports {
		if d.resolver.Matches(src, raw, target) {
			return true
		}
	}
	return false
}
