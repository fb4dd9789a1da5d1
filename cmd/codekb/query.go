package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"codekb/internal/graph"
	"codekb/internal/paths"
)

var (
	hubsTop    int
	relatedTop int
)

var hubsCmd = &cobra.Command{
	Use:   "hubs",
	Short: "List the most imported files",
	RunE:  runHubs,
}

var cyclesCmd = &cobra.Command{
	Use:   "cycles",
	Short: "List import cycles",
	RunE:  runCycles,
}

var importersCmd = &cobra.Command{
	Use:   "importers <path>",
	Short: "Show which files import a file and what it imports",
	Args:  cobra.ExactArgs(1),
	RunE:  runImporters,
}

var relatedCmd = &cobra.Command{
	Use:   "related <path>...",
	Short: "Rank files by their import proximity to the given files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRelated,
}

func init() {
	hubsCmd.Flags().IntVarP(&hubsTop, "top", "n", 15, "Number of files to list")
	relatedCmd.Flags().IntVarP(&relatedTop, "top", "n", 20, "Number of files to list")
	rootCmd.AddCommand(hubsCmd, cyclesCmd, importersCmd, relatedCmd)
}

// HubsResponseCLI lists hub files.
type HubsResponseCLI struct {
	Hubs  []graph.HubEntry `json:"hubs"`
	Stale bool             `json:"stale"`
}

// CyclesResponseCLI lists import cycles.
type CyclesResponseCLI struct {
	Cycles []graph.Cycle `json:"cycles"`
	Stale  bool          `json:"stale"`
}

// ImportersResponseCLI describes one file's neighbourhood.
type ImportersResponseCLI struct {
	Path      string   `json:"path"`
	Importers []string `json:"importers"`
	Imports   []string `json:"imports"`
	Stale     bool     `json:"stale"`
}

// RelatedResponseCLI lists files ranked by proximity to the seeds.
type RelatedResponseCLI struct {
	Seeds   []string           `json:"seeds"`
	Results []graph.RankedFile `json:"results"`
	Stale   bool               `json:"stale"`
}

// withFreshSession opens a session, applies pending changes and runs fn.
func withFreshSession(fn func(ctx context.Context, s *cliSession) (any, error)) error {
	ctx, cancel := newContext()
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := refresh(ctx, s); err != nil {
		return err
	}
	resp, err := fn(ctx, s)
	if err != nil {
		return err
	}
	return printResponse(resp)
}

func runHubs(cmd *cobra.Command, args []string) error {
	return withFreshSession(func(ctx context.Context, s *cliSession) (any, error) {
		var hubs []graph.HubEntry
		for _, h := range s.HubRanking(hubsTop) {
			if h.InDegree > 0 {
				hubs = append(hubs, h)
			}
		}
		return &HubsResponseCLI{Hubs: hubs, Stale: s.IsStale()}, nil
	})
}

func runCycles(cmd *cobra.Command, args []string) error {
	return withFreshSession(func(ctx context.Context, s *cliSession) (any, error) {
		return &CyclesResponseCLI{Cycles: s.GraphSnapshot().DetectCycles(), Stale: s.IsStale()}, nil
	})
}

func runImporters(cmd *cobra.Command, args []string) error {
	return withFreshSession(func(ctx context.Context, s *cliSession) (any, error) {
		p := workspacePath(s, args[0])
		if _, ok := s.GraphSnapshot().Facts(p); !ok {
			return nil, fmt.Errorf("%s is not in the dependency graph; check the path is relative to %s", p, s.Root())
		}
		return &ImportersResponseCLI{
			Path:      p,
			Importers: s.ImportersOf(p),
			Imports:   s.ImportedBy(p),
			Stale:     s.IsStale(),
		}, nil
	})
}

func runRelated(cmd *cobra.Command, args []string) error {
	return withFreshSession(func(ctx context.Context, s *cliSession) (any, error) {
		seeds := make([]string, 0, len(args))
		for _, a := range args {
			seeds = append(seeds, workspacePath(s, a))
		}
		opts := graph.DefaultRankOptions()
		opts.TopK = relatedTop
		out, err := s.GraphSnapshot().Related(ctx, seeds, opts)
		if err != nil {
			return nil, err
		}
		return &RelatedResponseCLI{Seeds: out.Seeds, Results: out.Results, Stale: s.IsStale()}, nil
	})
}

// workspacePath converts a command-line path into a workspace-relative one.
func workspacePath(s *cliSession, arg string) string {
	return paths.ToRelative(s.Root(), arg)
}
