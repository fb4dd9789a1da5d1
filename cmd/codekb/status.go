package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"codekb/internal/graph"
	"codekb/internal/index"
	"codekb/internal/version"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index freshness and graph statistics",
	Long:  "Display whether the dependency graph reflects the workspace, what changed since the last build, and how many files could not be analyzed.",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// StatusResponseCLI contains the index status for CLI output
type StatusResponseCLI struct {
	Version     string          `json:"version"`
	Root        string          `json:"root"`
	State       string          `json:"state"`
	Reason      string          `json:"reason,omitempty"`
	Pending     int             `json:"pending"`
	Fingerprint *FingerprintCLI `json:"fingerprint,omitempty"`
	Graph       graph.Stats     `json:"graph"`
	Changes     *index.Changes  `json:"changes,omitempty"`
	Skipped     map[string]int  `json:"skipped,omitempty"`
	SkipSummary string          `json:"skipSummary,omitempty"`
}

// FingerprintCLI describes the last committed build.
type FingerprintCLI struct {
	Hash      string    `json:"hash"`
	FileCount int       `json:"fileCount"`
	BuiltAt   time.Time `json:"builtAt"`
	Age       string    `json:"age"`
	BuildID   string    `json:"buildId,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := newContext()
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	st := s.Status()
	resp := &StatusResponseCLI{
		Version: version.Info(),
		Root:    s.Root(),
		State:   string(st.State),
		Reason:  string(st.Reason),
		Pending: st.Pending,
		Graph:   s.GraphSnapshot().Stats(),
	}
	if fp := s.Fingerprint(); fp != nil {
		resp.Fingerprint = &FingerprintCLI{
			Hash:      fp.Hash,
			FileCount: fp.FileCount,
			BuiltAt:   fp.BuiltAt,
			Age:       fp.Age(),
			BuildID:   fp.BuildID,
		}
	}
	if changes := s.Startup().Changes; !changes.Empty() {
		resp.Changes = &changes
	}

	skips, err := s.SkipCounts()
	if err != nil {
		return err
	}
	if skips.Total() > 0 {
		resp.Skipped = make(map[string]int, len(skips))
		for r, n := range skips {
			resp.Skipped[string(r)] = n
		}
		resp.SkipSummary = skips.String()
	}
	return printResponse(resp)
}

func formatStatusHuman(resp *StatusResponseCLI) string {
	var b strings.Builder

	fmt.Fprintf(&b, "codekb v%s\n", resp.Version)
	b.WriteString(strings.Repeat("=", 60) + "\n\n")
	fmt.Fprintf(&b, "Workspace: %s\n", resp.Root)

	state := resp.State
	if resp.Reason != "" {
		state = fmt.Sprintf("%s (%s)", state, resp.Reason)
	}
	fmt.Fprintf(&b, "Index:     %s\n", state)
	if resp.Pending > 0 {
		fmt.Fprintf(&b, "Pending:   %d changes\n", resp.Pending)
	}

	if fp := resp.Fingerprint; fp != nil {
		hash := fp.Hash
		if len(hash) > 12 {
			hash = hash[:12]
		}
		fmt.Fprintf(&b, "Built:     %s (%d files, %s)\n", fp.Age, fp.FileCount, hash)
	} else {
		b.WriteString("Built:     never\n")
	}

	g := resp.Graph
	b.WriteString("\nGraph:\n")
	fmt.Fprintf(&b, "  Files:   %d\n", g.Files)
	fmt.Fprintf(&b, "  Imports: %d (%d resolved, %d unresolved, %d dangling)\n", g.Edges, g.Resolved, g.Unresolved, g.Dangling)
	fmt.Fprintf(&b, "  Symbols: %d\n", g.Symbols)

	if c := resp.Changes; c != nil {
		b.WriteString("\nChanged since last build:\n")
		fmt.Fprintf(&b, "  %d added, %d modified, %d deleted\n", len(c.Created), len(c.Modified), len(c.Deleted))
	}
	if resp.SkipSummary != "" {
		fmt.Fprintf(&b, "\n%s\n", resp.SkipSummary)
	}
	return strings.TrimRight(b.String(), "\n")
}
