package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Edge weights for the related-files walk. Following an import is a stronger
// signal than being imported.
const (
	importWeight   = 1.0
	importerWeight = 0.5
)

// RankOptions configures Personalized PageRank over the import graph.
type RankOptions struct {
	// Damping is the probability of following an edge vs teleporting (default: 0.85)
	Damping float64

	// MaxIterations is the maximum number of power iterations (default: 20)
	MaxIterations int

	// Tolerance for convergence detection (default: 1e-6)
	Tolerance float64

	// TopK is the number of results to return (default: 20)
	TopK int

	// IncludePaths backtracks from each result to a seed
	IncludePaths bool
}

// DefaultRankOptions returns sensible defaults.
func DefaultRankOptions() RankOptions {
	return RankOptions{
		Damping:       0.85,
		MaxIterations: 20,
		Tolerance:     1e-6,
		TopK:          20,
		IncludePaths:  true,
	}
}

// RankedFile is a file scored by its proximity to the seeds.
type RankedFile struct {
	Path  string   `json:"path"`
	Score float64  `json:"score"`
	Via   []string `json:"via,omitempty"` // path from a seed to this file
}

// RankOutput is the result of Related.
type RankOutput struct {
	Results    []RankedFile `json:"results"`
	Iterations int          `json:"iterations"`
	Converged  bool         `json:"converged"`
	Seeds      []string     `json:"seeds"`
	TotalFiles int          `json:"totalFiles"`
}

type weightedEdge struct {
	target int
	weight float64
}

// rankGraph is a dense-indexed adjacency view of a snapshot.
type rankGraph struct {
	nodes   []string
	nodeIdx map[string]int
	out     [][]weightedEdge
	in      [][]weightedEdge
}

func buildRankGraph(s *state) *rankGraph {
	paths := s.sortedPaths()
	rg := &rankGraph{
		nodes:   paths,
		nodeIdx: make(map[string]int, len(paths)),
		out:     make([][]weightedEdge, len(paths)),
		in:      make([][]weightedEdge, len(paths)),
	}
	for i, p := range paths {
		rg.nodeIdx[p] = i
	}
	for i, p := range paths {
		for _, dst := range s.successors(p) {
			j := rg.nodeIdx[dst]
			if i == j {
				continue
			}
			rg.add(i, j, importWeight)
			rg.add(j, i, importerWeight)
		}
	}
	return rg
}

func (rg *rankGraph) add(from, to int, w float64) {
	rg.out[from] = append(rg.out[from], weightedEdge{target: to, weight: w})
	rg.in[to] = append(rg.in[to], weightedEdge{target: from, weight: w})
}

// Related ranks files by Personalized PageRank seeded at seeds. Seeds that
// are not files in the snapshot are ignored.
func (s *Snapshot) Related(ctx context.Context, seeds []string, opts RankOptions) (*RankOutput, error) {
	if len(seeds) == 0 {
		return nil, fmt.Errorf("no seed files provided")
	}

	rg := buildRankGraph(s.st)
	n := len(rg.nodes)
	if n == 0 {
		return &RankOutput{Results: []RankedFile{}, Seeds: seeds}, nil
	}

	if opts.Damping <= 0 || opts.Damping >= 1 {
		opts.Damping = 0.85
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 20
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = 1e-6
	}
	if opts.TopK <= 0 {
		opts.TopK = 20
	}

	seedIdx := make([]int, 0, len(seeds))
	validSeeds := make([]string, 0, len(seeds))
	for _, seed := range seeds {
		if i, ok := rg.nodeIdx[seed]; ok {
			seedIdx = append(seedIdx, i)
			validSeeds = append(validSeeds, seed)
		}
	}
	if len(seedIdx) == 0 {
		return &RankOutput{Results: []RankedFile{}, Seeds: seeds, TotalFiles: n}, nil
	}

	teleport := make([]float64, n)
	for _, i := range seedIdx {
		teleport[i] = 1.0 / float64(len(seedIdx))
	}
	scores := append([]float64(nil), teleport...)

	outWeight := make([]float64, n)
	for i, edges := range rg.out {
		for _, e := range edges {
			outWeight[i] += e.weight
		}
	}

	next := make([]float64, n)
	var iterations int
	var converged bool
	for iter := range opts.MaxIterations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		iterations = iter + 1

		for i := range next {
			next[i] = 0
		}
		for i, edges := range rg.out {
			if outWeight[i] == 0 {
				continue
			}
			share := scores[i] / outWeight[i]
			for _, e := range edges {
				next[e.target] += share * e.weight
			}
		}

		maxDiff := 0.0
		for i := range next {
			next[i] = opts.Damping*next[i] + (1-opts.Damping)*teleport[i]
			if d := abs(next[i] - scores[i]); d > maxDiff {
				maxDiff = d
			}
		}
		scores, next = next, scores

		if maxDiff < opts.Tolerance {
			converged = true
			break
		}
	}

	type scored struct {
		idx   int
		score float64
	}
	ranked := make([]scored, 0, n)
	for i, sc := range scores {
		if sc > 0 {
			ranked = append(ranked, scored{idx: i, score: sc})
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return rg.nodes[ranked[i].idx] < rg.nodes[ranked[j].idx]
	})
	if len(ranked) > opts.TopK {
		ranked = ranked[:opts.TopK]
	}

	seedSet := make(map[int]bool, len(seedIdx))
	for _, i := range seedIdx {
		seedSet[i] = true
	}
	results := make([]RankedFile, len(ranked))
	for i, r := range ranked {
		results[i] = RankedFile{Path: rg.nodes[r.idx], Score: r.score}
		if opts.IncludePaths && !seedSet[r.idx] {
			results[i].Via = rg.backtrack(r.idx, seedSet, 5)
		}
	}

	return &RankOutput{
		Results:    results,
		Iterations: iterations,
		Converged:  converged,
		Seeds:      validSeeds,
		TotalFiles: n,
	}, nil
}

// backtrack follows the heaviest unvisited incoming edge from target until a
// seed is reached, then returns the path seed-first.
func (rg *rankGraph) backtrack(target int, seeds map[int]bool, maxDepth int) []string {
	path := []string{rg.nodes[target]}
	visited := map[int]bool{target: true}
	current := target

	for depth := 0; depth < maxDepth; depth++ {
		best, bestWeight := -1, 0.0
		for _, e := range rg.in[current] {
			if !visited[e.target] && e.weight > bestWeight {
				best, bestWeight = e.target, e.weight
			}
		}
		if best < 0 {
			break
		}
		path = append(path, rg.nodes[best])
		visited[best] = true
		if seeds[best] {
			break
		}
		current = best
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// FilterByPrefix keeps results whose path starts with prefix.
func FilterByPrefix(results []RankedFile, prefix string) []RankedFile {
	out := make([]RankedFile, 0, len(results))
	for _, r := range results {
		if strings.HasPrefix(r.Path, prefix) {
			out = append(out, r)
		}
	}
	return out
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
