package main

import (
	"fmt"
	"os"

	kberrors "codekb/internal/errors"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError(err)
		os.Exit(1)
	}
}

// printError writes err and, for coded errors, the suggested fixes.
func printError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	for _, fix := range kberrors.GetSuggestedFixes(kberrors.CodeOf(err)) {
		switch {
		case fix.Command != "":
			fmt.Fprintf(os.Stderr, "  → %s: %s\n", fix.Description, fix.Command)
		case fix.Key != "":
			fmt.Fprintf(os.Stderr, "  → %s (%s)\n", fix.Description, fix.Key)
		default:
			fmt.Fprintf(os.Stderr, "  → %s\n", fix.Description)
		}
	}
}
