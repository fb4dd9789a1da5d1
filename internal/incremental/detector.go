package incremental

import (
	"context"
	"fmt"
	"log/slog"

	"codekb/internal/index"
)

// BuildRecord reads what the last committed build recorded.
// *storage.GraphStore implements it.
type BuildRecord interface {
	LoadFingerprint() (*index.Fingerprint, error)
	LoadSignatures() ([]index.FileSignature, error)
}

// StartupCheck is the outcome of comparing the workspace with the last build.
type StartupCheck struct {
	Fresh     bool               `json:"fresh"`
	Reason    Reason             `json:"reason,omitempty"`
	Current   index.Fingerprint  `json:"current"`
	Persisted *index.Fingerprint `json:"persisted,omitempty"`
	Changes   index.Changes      `json:"changes"`
}

// Events converts the detected changes into change events.
func (c StartupCheck) Events() []ChangeEvent {
	events := make([]ChangeEvent, 0, c.Changes.Len())
	for _, p := range c.Changes.Created {
		events = append(events, ChangeEvent{Path: p, Kind: ChangeCreated, Saved: true})
	}
	for _, p := range c.Changes.Modified {
		events = append(events, ChangeEvent{Path: p, Kind: ChangeModified, Saved: true})
	}
	for _, p := range c.Changes.Deleted {
		events = append(events, ChangeEvent{Path: p, Kind: ChangeDeleted})
	}
	return events
}

// ChangeDetector decides on startup whether the persisted build still
// describes the workspace. It polls the file system once; afterwards change
// events are the only trigger.
type ChangeDetector struct {
	root   string
	lister FileLister
	record BuildRecord
	logger *slog.Logger
}

// NewChangeDetector creates a detector for root.
func NewChangeDetector(root string, lister FileLister, record BuildRecord, logger *slog.Logger) *ChangeDetector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ChangeDetector{root: root, lister: lister, record: record, logger: logger}
}

// Check fingerprints the workspace and compares it with the persisted build.
// Differing hash or file count means Stale(structural); the changed set is
// derived from the per-file signatures. No persisted build means
// Stale(structural) with a full rebuild.
func (d *ChangeDetector) Check(ctx context.Context) (StartupCheck, error) {
	files, err := d.lister.ListFiles(ctx, true)
	if err != nil {
		return StartupCheck{}, fmt.Errorf("listing workspace files: %w", err)
	}
	sigs, err := index.StatFiles(d.root, files)
	if err != nil {
		return StartupCheck{}, fmt.Errorf("fingerprinting workspace: %w", err)
	}

	check := StartupCheck{Current: index.Compute(sigs)}

	persisted, err := d.record.LoadFingerprint()
	if err != nil {
		return StartupCheck{}, err
	}
	check.Persisted = persisted
	if persisted == nil {
		check.Reason = ReasonStructural
		d.logger.Info("No previous build found", "files", check.Current.FileCount)
		return check, nil
	}

	if check.Current.Matches(persisted) {
		check.Fresh = true
		return check, nil
	}

	previous, err := d.record.LoadSignatures()
	if err != nil {
		return StartupCheck{}, err
	}
	check.Reason = ReasonStructural
	check.Changes = index.Diff(previous, sigs)

	d.logger.Info("Workspace changed since last build",
		"created", len(check.Changes.Created),
		"modified", len(check.Changes.Modified),
		"deleted", len(check.Changes.Deleted),
		"previousFiles", persisted.FileCount,
		"currentFiles", check.Current.FileCount,
	)
	return check, nil
}
