package main

import (
	"github.com/spf13/cobra"

	"codekb/internal/version"
)

var (
	repoFlag    string
	formatFlag  string
	verboseFlag int
	quietFlag   bool
	noRefresh   bool
)

var rootCmd = &cobra.Command{
	Use:   "codekb",
	Short: "codekb - incremental dependency graph and knowledge base",
	Long: `codekb parses a source tree into an import graph, keeps it up to date
incrementally as files change, and writes markdown summaries of the
architecture for AI coding assistants.`,
	Version:       version.Info(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("codekb version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&repoFlag, "repo", "", "Workspace root (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&formatFlag, "format", string(FormatHuman), "Output format (human, json, yaml)")
	rootCmd.PersistentFlags().CountVarP(&verboseFlag, "verbose", "v", "Increase log verbosity (-v, -vv)")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress log output")
	rootCmd.PersistentFlags().BoolVar(&noRefresh, "no-refresh", false, "Answer from the stored graph without applying pending changes")
}
