package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"codekb/internal/config"
	kberrors "codekb/internal/errors"
	"codekb/internal/slogutil"
	"codekb/internal/workspace"
)

// getRepoRoot returns the workspace root from --repo or the working directory.
func getRepoRoot() (string, error) {
	if repoFlag != "" {
		return filepath.Abs(repoFlag)
	}
	return os.Getwd()
}

// newContext returns a context cancelled on SIGINT or SIGTERM.
func newContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// cliSession bundles an open session with the resources the CLI created for it.
type cliSession struct {
	*workspace.Session
	logger  *slog.Logger
	factory *slogutil.LoggerFactory
}

func (c *cliSession) Close() {
	if err := c.Session.Close(); err != nil {
		c.logger.Warn("Failed to close session", "error", err.Error())
	}
	_ = c.factory.Close()
}

// openSession loads the configuration, sets up logging and opens the
// workspace session.
func openSession(ctx context.Context) (*cliSession, error) {
	root, err := getRepoRoot()
	if err != nil {
		return nil, kberrors.New(kberrors.WorkspaceUnreadable, "cannot determine workspace root", err)
	}

	cfg, err := config.LoadConfig(root)
	if err != nil {
		return nil, kberrors.New(kberrors.ConfigInvalid, "failed to load configuration", err)
	}

	cliSet := verboseFlag > 0 || quietFlag
	factory := slogutil.NewLoggerFactory(root, cfg, slogutil.LevelFromVerbosity(verboseFlag, quietFlag), cliSet)
	logger := factory.CLILogger(os.Stderr)

	s, err := workspace.Open(ctx, root, workspace.Options{Config: cfg, Logger: logger})
	if err != nil {
		_ = factory.Close()
		return nil, err
	}
	return &cliSession{Session: s, logger: logger, factory: factory}, nil
}

// refresh applies pending changes so read commands answer from a fresh graph.
func refresh(ctx context.Context, s *cliSession) error {
	if noRefresh || !s.IsStale() {
		return nil
	}
	stats, err := s.Rebuild(ctx)
	if err != nil {
		return fmt.Errorf("refreshing index: %w", err)
	}
	s.logger.Debug("Index refreshed", "parsed", stats.Parsed, "full", stats.Full)
	return nil
}

// printResponse formats resp with --format and writes it to stdout.
func printResponse(resp any) error {
	out, err := FormatResponse(resp, OutputFormat(formatFlag))
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}
