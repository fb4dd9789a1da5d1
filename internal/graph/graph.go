package graph

import (
	"sync"
	"sync/atomic"
)

// Graph is the authoritative dependency graph for one workspace. It has a
// single writer (the incremental updater) and any number of readers.
type Graph struct {
	mu      sync.RWMutex
	st      *state
	version uint64
	snap    atomic.Pointer[Snapshot]
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{st: newState()}
}

// UpsertFile replaces all facts attributed to f.File.Path. Calling it twice
// with the same facts leaves the graph unchanged.
func (g *Graph) UpsertFile(f FileFacts) {
	g.Apply(Batch{{Kind: OpUpsert, Facts: f}})
}

// RemoveFile deletes a file node and its outgoing edges. Edges from other
// files to path are kept and become dangling. Unknown paths are ignored.
func (g *Graph) RemoveFile(path string) {
	g.Apply(Batch{{Kind: OpRemove, Path: path}})
}

// Relink replaces the edges of an existing file while keeping its symbols.
func (g *Graph) Relink(path string, edges []ImportEdge) {
	g.Apply(Batch{{Kind: OpRelink, Path: path, Edges: edges}})
}

// Apply applies every operation in b as one critical section and returns the
// batch that restores the previous state.
func (g *Graph) Apply(b Batch) Batch {
	if len(b) == 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	inverse := make(Batch, 0, len(b))
	for _, op := range b {
		path := op.path()
		if prev, ok := g.st.facts(path); ok {
			inverse = append(inverse, Op{Kind: OpUpsert, Facts: prev})
		} else {
			inverse = append(inverse, Op{Kind: OpRemove, Path: path})
		}

		switch op.Kind {
		case OpUpsert:
			g.st.upsert(op.Facts)
		case OpRemove:
			g.st.remove(op.Path)
		case OpRelink:
			g.st.relink(op.Path, op.Edges)
		}
	}
	g.version++
	assertConsistent(g.st)

	// Undo in reverse order so repeated paths restore their earliest state.
	for i, j := 0, len(inverse)-1; i < j; i, j = i+1, j-1 {
		inverse[i], inverse[j] = inverse[j], inverse[i]
	}
	return inverse
}

// Replace swaps the whole content of g for other's. Used to publish a graph
// built off to the side by a full rebuild.
func (g *Graph) Replace(other *Graph) {
	other.mu.RLock()
	st := other.st.clone()
	other.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()
	g.st = st
	g.version++
	assertConsistent(g.st)
}

// Version increments on every mutation.
func (g *Graph) Version() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.version
}

// HasFile reports whether path is a node.
func (g *Graph) HasFile(path string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.st.files[path]
	return ok
}

// File returns the node for path.
func (g *Graph) File(path string) (FileNode, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	f, ok := g.st.files[path]
	return f, ok
}

// Facts returns a copy of everything attributed to path.
func (g *Graph) Facts(path string) (FileFacts, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.st.facts(path)
}

// Paths returns all file paths, sorted.
func (g *Graph) Paths() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.st.sortedPaths()
}

// ImportersOf returns the existing files with a resolved import of path.
// The result is sorted and empty for unknown or removed files.
func (g *Graph) ImportersOf(path string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.st.importersOf(path)
}

// ImportedBy returns the resolved targets of path's imports, sorted.
// Targets may be dangling.
func (g *Graph) ImportedBy(path string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.st.importedBy(path)
}

// HubScore returns the number of distinct existing importers of path.
func (g *Graph) HubScore(path string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.st.hubScore(path)
}

// HubRanking returns files by in-degree descending, then path. topN <= 0
// returns every file.
func (g *Graph) HubRanking(topN int) []HubEntry {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.st.hubRanking(topN)
}

// DetectCycles reports import cycles. It does not mutate the graph.
func (g *Graph) DetectCycles() []Cycle {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return detectCycles(g.st)
}

// UnresolvedEdges returns every edge whose import did not resolve, plus
// resolved edges whose target no longer exists.
func (g *Graph) UnresolvedEdges() []ImportEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []ImportEdge
	for _, src := range g.st.sortedPaths() {
		for _, e := range g.st.out[src] {
			if !e.Resolved {
				out = append(out, e)
				continue
			}
			if _, ok := g.st.files[e.Dst]; !ok {
				out = append(out, e)
			}
		}
	}
	return out
}

// Stats returns size counters.
func (g *Graph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.st.stats()
}

// Verify checks forward/reverse index consistency.
func (g *Graph) Verify() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.st.verify()
}

// Snapshot returns an immutable copy of the graph. The copy is cached until
// the next mutation.
func (g *Graph) Snapshot() *Snapshot {
	g.mu.RLock()
	if s := g.snap.Load(); s != nil && s.Version == g.version {
		g.mu.RUnlock()
		return s
	}
	s := newSnapshot(g.version, g.st.clone())
	g.mu.RUnlock()

	g.snap.Store(s)
	return s
}
