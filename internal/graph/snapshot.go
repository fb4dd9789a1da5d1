package graph

import (
	"sort"

	"codekb/internal/parser"
)

// Snapshot is a read-only, point-in-time copy of the graph. It is safe to
// query without holding any lock while the live graph is being updated.
type Snapshot struct {
	Version uint64          `json:"version"`
	Files   []FileNode      `json:"files"`
	Edges   []ImportEdge    `json:"edges"`
	Symbols []parser.Symbol `json:"symbols"`

	st *state
}

func newSnapshot(version uint64, st *state) *Snapshot {
	s := &Snapshot{Version: version, st: st}
	for _, p := range st.sortedPaths() {
		s.Files = append(s.Files, st.files[p])
		s.Edges = append(s.Edges, st.out[p]...)
		s.Symbols = append(s.Symbols, st.symbols[p]...)
	}
	return s
}

// SnapshotFromFacts builds a snapshot directly from stored facts, e.g. when
// loading a persisted graph for read-only use.
func SnapshotFromFacts(facts []FileFacts) *Snapshot {
	st := newState()
	for _, f := range facts {
		st.upsert(f)
	}
	return newSnapshot(0, st)
}

// ImportersOf returns the existing files importing path.
func (s *Snapshot) ImportersOf(path string) []string { return s.st.importersOf(path) }

// ImportedBy returns the resolved targets of path's imports.
func (s *Snapshot) ImportedBy(path string) []string { return s.st.importedBy(path) }

// HubScore returns the number of distinct existing importers of path.
func (s *Snapshot) HubScore(path string) int { return s.st.hubScore(path) }

// HubRanking returns files by in-degree descending, then path.
func (s *Snapshot) HubRanking(topN int) []HubEntry { return s.st.hubRanking(topN) }

// DetectCycles reports import cycles in the snapshot.
func (s *Snapshot) DetectCycles() []Cycle { return detectCycles(s.st) }

// Stats returns size counters.
func (s *Snapshot) Stats() Stats { return s.st.stats() }

// Facts returns everything attributed to path.
func (s *Snapshot) Facts(path string) (FileFacts, bool) { return s.st.facts(path) }

// SymbolsOf returns the symbols declared in path, in source order.
func (s *Snapshot) SymbolsOf(path string) []parser.Symbol {
	syms := append([]parser.Symbol(nil), s.st.symbols[path]...)
	sort.SliceStable(syms, func(i, j int) bool { return syms[i].Line < syms[j].Line })
	return syms
}

// AllFacts returns the facts of every file, ordered by path.
func (s *Snapshot) AllFacts() []FileFacts {
	paths := s.st.sortedPaths()
	out := make([]FileFacts, 0, len(paths))
	for _, p := range paths {
		f, _ := s.st.facts(p)
		out = append(out, f)
	}
	return out
}
