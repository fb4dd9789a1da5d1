package incremental

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"codekb/internal/index"
)

// IncrementalIndexer runs rebuilds under the cross-process rebuild lock.
type IncrementalIndexer struct {
	stateDir string
	updater  *IndexUpdater
	detector *ChangeDetector
	logger   *slog.Logger
}

// NewIncrementalIndexer creates an indexer whose lock lives in stateDir.
func NewIncrementalIndexer(stateDir string, updater *IndexUpdater, detector *ChangeDetector, logger *slog.Logger) *IncrementalIndexer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &IncrementalIndexer{
		stateDir: stateDir,
		updater:  updater,
		detector: detector,
		logger:   logger,
	}
}

// Full rebuilds the whole graph.
func (i *IncrementalIndexer) Full(ctx context.Context) (DeltaStats, error) {
	lock, err := index.AcquireLock(i.stateDir)
	if err != nil {
		return DeltaStats{}, err
	}
	defer lock.Release()
	return i.updater.Rebuild(ctx)
}

// Incremental applies a batch of change events.
func (i *IncrementalIndexer) Incremental(ctx context.Context, events []ChangeEvent) (DeltaStats, error) {
	lock, err := index.AcquireLock(i.stateDir)
	if err != nil {
		return DeltaStats{}, err
	}
	defer lock.Release()
	return i.updater.ApplyChanges(ctx, events)
}

// CheckStartup compares the workspace with the persisted build.
func (i *IncrementalIndexer) CheckStartup(ctx context.Context) (StartupCheck, error) {
	check, err := i.detector.Check(ctx)
	if err != nil {
		return check, err
	}
	if check.Persisted != nil {
		i.updater.SetFingerprint(check.Persisted)
	}
	return check, nil
}

// Fingerprint returns the fingerprint of the last committed build.
func (i *IncrementalIndexer) Fingerprint() *index.Fingerprint {
	return i.updater.Fingerprint()
}

// FormatStats renders a rebuild summary for the terminal.
func FormatStats(stats DeltaStats) string {
	var b strings.Builder
	if stats.Full {
		fmt.Fprintf(&b, "Full rebuild complete\n")
		fmt.Fprintf(&b, "Files:   %d indexed, %d parsed\n", stats.Files, stats.Parsed)
	} else {
		fmt.Fprintf(&b, "Incremental update complete\n")
		fmt.Fprintf(&b, "Files:   %d modified, %d added, %d deleted, %d relinked\n",
			stats.Modified, stats.Created, stats.Deleted, stats.Relinked)
		if stats.Bulk {
			fmt.Fprintf(&b, "Mode:    bulk change\n")
		}
	}
	fmt.Fprintf(&b, "Time:    %v\n", stats.Duration.Round(time.Millisecond))
	if msg := stats.Skips.String(); msg != "" {
		fmt.Fprintf(&b, "Skipped: %s\n", msg)
	}
	return b.String()
}
