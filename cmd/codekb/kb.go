package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"codekb/internal/kb"
)

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Write the knowledge base documents",
	Long: `Renders the architecture, symbol and module documents from the current
dependency graph and writes them under .codekb/kb. Each document is capped
at the character budget configured under kb.*.`,
	RunE: runKB,
}

func init() {
	rootCmd.AddCommand(kbCmd)
}

// KBResponseCLI lists the documents that were written.
type KBResponseCLI struct {
	Dir     string      `json:"dir"`
	Reports []kb.Report `json:"reports"`
	Stale   bool        `json:"stale"`
}

func runKB(cmd *cobra.Command, args []string) error {
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
	reports, err := s.EmitKB(ctx)
	if err != nil {
		return err
	}
	return printResponse(&KBResponseCLI{Dir: s.KBDir(), Reports: reports, Stale: s.IsStale()})
}

func formatKBHuman(resp *KBResponseCLI) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Knowledge base written to %s\n\n", resp.Dir)
	for _, r := range resp.Reports {
		note := ""
		if r.Truncated {
			note = " (truncated)"
		}
		fmt.Fprintf(&b, "  %-18s %6d / %d chars%s\n", r.Name, r.Chars, r.Budget, note)
	}
	return strings.TrimRight(b.String(), "\n") + staleNote(resp.Stale)
}
