package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"codekb/internal/incremental"
	"codekb/internal/index"
)

var indexForce bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build or update the dependency graph",
	Long: `Brings the dependency graph up to date with the workspace.

Only files that changed since the last build are parsed again; files that
import created or deleted files are relinked. The first run, or --force,
parses every source file.

Examples:
  codekb index           # Apply changes since the last build
  codekb index --force   # Rebuild the whole graph`,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&indexForce, "force", false, "Reparse every file even if the index is fresh")
	rootCmd.AddCommand(indexCmd)
}

// IndexResponseCLI describes the outcome of an index run.
type IndexResponseCLI struct {
	UpToDate    bool                   `json:"upToDate"`
	Stats       incremental.DeltaStats `json:"stats"`
	Fingerprint *index.Fingerprint     `json:"fingerprint,omitempty"`
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx, cancel := newContext()
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	resp := &IndexResponseCLI{}
	switch {
	case indexForce:
		resp.Stats, err = s.ForceRebuild(ctx)
	case !s.IsStale():
		resp.UpToDate = true
	default:
		resp.Stats, err = s.Rebuild(ctx)
	}
	if err != nil {
		return err
	}
	resp.Fingerprint = s.Fingerprint()
	return printResponse(resp)
}

func formatIndexHuman(resp *IndexResponseCLI) string {
	if resp.UpToDate {
		if fp := resp.Fingerprint; fp != nil {
			return fmt.Sprintf("Index is up to date (%d files, built %s)", fp.FileCount, fp.Age())
		}
		return "Index is up to date"
	}
	return strings.TrimRight(incremental.FormatStats(resp.Stats), "\n")
}
