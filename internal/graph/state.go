package graph

import (
	"fmt"
	"sort"

	"codekb/internal/parser"
)

// state is the indexed graph content shared by Graph and Snapshot.
type state struct {
	files   map[string]FileNode
	imports map[string][]string
	out     map[string][]ImportEdge
	symbols map[string][]parser.Symbol
	// in maps a resolved destination to its importers and the number of
	// edges each contributes. Entries for removed destinations are kept so
	// dangling edges reattach when the file reappears.
	in map[string]map[string]int
}

func newState() *state {
	return &state{
		files:   make(map[string]FileNode),
		imports: make(map[string][]string),
		out:     make(map[string][]ImportEdge),
		symbols: make(map[string][]parser.Symbol),
		in:      make(map[string]map[string]int),
	}
}

func (s *state) clone() *state {
	c := &state{
		files:   make(map[string]FileNode, len(s.files)),
		imports: make(map[string][]string, len(s.imports)),
		out:     make(map[string][]ImportEdge, len(s.out)),
		symbols: make(map[string][]parser.Symbol, len(s.symbols)),
		in:      make(map[string]map[string]int, len(s.in)),
	}
	for k, v := range s.files {
		c.files[k] = v
	}
	for k, v := range s.imports {
		c.imports[k] = append([]string(nil), v...)
	}
	for k, v := range s.out {
		c.out[k] = append([]ImportEdge(nil), v...)
	}
	for k, v := range s.symbols {
		c.symbols[k] = append([]parser.Symbol(nil), v...)
	}
	for k, v := range s.in {
		m := make(map[string]int, len(v))
		for src, n := range v {
			m[src] = n
		}
		c.in[k] = m
	}
	return c
}

func (s *state) facts(path string) (FileFacts, bool) {
	f, ok := s.files[path]
	if !ok {
		return FileFacts{}, false
	}
	return FileFacts{
		File:    f,
		Imports: append([]string(nil), s.imports[path]...),
		Edges:   append([]ImportEdge(nil), s.out[path]...),
		Symbols: append([]parser.Symbol(nil), s.symbols[path]...),
	}, true
}

// upsert replaces everything attributed to f.File.Path.
func (s *state) upsert(f FileFacts) {
	p := f.File.Path
	s.unlinkOut(p)
	s.files[p] = f.File
	s.imports[p] = append([]string(nil), f.Imports...)
	s.symbols[p] = append([]parser.Symbol(nil), f.Symbols...)
	s.linkOut(p, f.Edges)
}

// relink replaces only the edges of an existing file.
func (s *state) relink(path string, edges []ImportEdge) {
	if _, ok := s.files[path]; !ok {
		return
	}
	s.unlinkOut(path)
	s.linkOut(path, edges)
}

func (s *state) remove(path string) {
	if _, ok := s.files[path]; !ok {
		return
	}
	s.unlinkOut(path)
	delete(s.files, path)
	delete(s.imports, path)
	delete(s.symbols, path)
}

func (s *state) linkOut(src string, edges []ImportEdge) {
	out := make([]ImportEdge, 0, len(edges))
	for _, e := range edges {
		e.Src = src
		out = append(out, e)
		if !e.Resolved {
			continue
		}
		importers := s.in[e.Dst]
		if importers == nil {
			importers = make(map[string]int)
			s.in[e.Dst] = importers
		}
		importers[src]++
	}
	s.out[src] = out
}

func (s *state) unlinkOut(src string) {
	for _, e := range s.out[src] {
		if !e.Resolved {
			continue
		}
		importers := s.in[e.Dst]
		if importers == nil {
			continue
		}
		if importers[src]--; importers[src] <= 0 {
			delete(importers, src)
		}
		if len(importers) == 0 {
			delete(s.in, e.Dst)
		}
	}
	delete(s.out, src)
}

func (s *state) importersOf(path string) []string {
	if _, ok := s.files[path]; !ok {
		return nil
	}
	var out []string
	for src := range s.in[path] {
		if _, ok := s.files[src]; ok {
			out = append(out, src)
		}
	}
	sort.Strings(out)
	return out
}

func (s *state) importedBy(path string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range s.out[path] {
		if e.Resolved && !seen[e.Dst] {
			seen[e.Dst] = true
			out = append(out, e.Dst)
		}
	}
	sort.Strings(out)
	return out
}

func (s *state) hubScore(path string) int {
	return len(s.importersOf(path))
}

func (s *state) hubRanking(topN int) []HubEntry {
	entries := make([]HubEntry, 0, len(s.files))
	for p := range s.files {
		entries = append(entries, HubEntry{Path: p, InDegree: s.hubScore(p)})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].InDegree != entries[j].InDegree {
			return entries[i].InDegree > entries[j].InDegree
		}
		return entries[i].Path < entries[j].Path
	})
	if topN > 0 && len(entries) > topN {
		entries = entries[:topN]
	}
	return entries
}

// successors returns the distinct existing files path imports, sorted.
func (s *state) successors(path string) []string {
	var out []string
	for _, dst := range s.importedBy(path) {
		if _, ok := s.files[dst]; ok {
			out = append(out, dst)
		}
	}
	return out
}

func (s *state) sortedPaths() []string {
	paths := make([]string, 0, len(s.files))
	for p := range s.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (s *state) stats() Stats {
	st := Stats{Files: len(s.files)}
	for _, edges := range s.out {
		for _, e := range edges {
			st.Edges++
			if !e.Resolved {
				st.Unresolved++
				continue
			}
			st.Resolved++
			if _, ok := s.files[e.Dst]; !ok {
				st.Dangling++
			}
		}
	}
	for _, syms := range s.symbols {
		st.Symbols += len(syms)
	}
	return st
}

// verify checks that the reverse index matches the resolved edge set exactly.
func (s *state) verify() error {
	want := make(map[string]map[string]int)
	for src, edges := range s.out {
		if _, ok := s.files[src]; !ok {
			return fmt.Errorf("edges recorded for unknown file %s", src)
		}
		for _, e := range edges {
			if e.Src != src {
				return fmt.Errorf("edge %s -> %s stored under %s", e.Src, e.Dst, src)
			}
			if !e.Resolved {
				continue
			}
			if want[e.Dst] == nil {
				want[e.Dst] = make(map[string]int)
			}
			want[e.Dst][src]++
		}
	}
	if len(want) != len(s.in) {
		return fmt.Errorf("reverse index has %d destinations, edges have %d", len(s.in), len(want))
	}
	for dst, importers := range want {
		got := s.in[dst]
		if len(got) != len(importers) {
			return fmt.Errorf("reverse index for %s has %d importers, want %d", dst, len(got), len(importers))
		}
		for src, n := range importers {
			if got[src] != n {
				return fmt.Errorf("reverse index %s <- %s count %d, want %d", dst, src, got[src], n)
			}
		}
	}
	return nil
}
