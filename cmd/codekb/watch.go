package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"codekb/internal/incremental"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the index fresh while files change",
	Long: `Builds the index if needed, then watches the workspace and applies
changes once edits go quiet for the configured debounce. Runs until
interrupted.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := newContext()
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	unsubscribe := s.Subscribe(func(t incremental.Transition) {
		fmt.Fprintf(os.Stderr, "index: %s -> %s\n", t.From, t.To)
	})
	defer unsubscribe()

	if s.IsStale() {
		if _, err := s.Rebuild(ctx); err != nil {
			return err
		}
	}
	if err := s.Watch(ctx); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Watching %s (Ctrl+C to stop)\n", s.Root())
	<-ctx.Done()
	return nil
}
