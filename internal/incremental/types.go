// Package incremental keeps the dependency graph in step with the workspace.
//
// A Tracker owns the Fresh/Stale/Rebuilding state machine and decides when
// to recompute. An IndexUpdater does the work: it re-parses only changed
// files, re-resolves the one-hop importers whose edges could now bind
// differently, and commits graph and fingerprint together.
package incremental

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"codekb/internal/config"
	"codekb/internal/parser"
)

// ChangeKind is the kind of change an event reports.
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeModified ChangeKind = "modified"
	ChangeDeleted  ChangeKind = "deleted"
)

// ChangeEvent is one change to a workspace-relative slash path. Saved marks
// content that has been written to disk; EditSize is the number of changed
// characters for unsaved edits.
type ChangeEvent struct {
	Path     string     `json:"path"`
	Kind     ChangeKind `json:"kind"`
	Saved    bool       `json:"saved,omitempty"`
	EditSize int        `json:"editSize,omitempty"`
}

// Structural reports whether the event adds or removes a file.
func (e ChangeEvent) Structural() bool {
	return e.Kind == ChangeCreated || e.Kind == ChangeDeleted
}

// State is the staleness state of the derived index.
type State string

const (
	StateFresh      State = "fresh"
	StateStale      State = "stale"
	StateRebuilding State = "rebuilding"
)

// Reason explains why the index went stale.
type Reason string

const (
	ReasonNone       Reason = ""
	ReasonEdited     Reason = "edited"
	ReasonStructural Reason = "structural"
	ReasonForced     Reason = "forced"
)

// Status is a point-in-time view of the tracker.
type Status struct {
	State   State     `json:"state"`
	Reason  Reason    `json:"reason,omitempty"`
	Pending int       `json:"pending"`
	Since   time.Time `json:"since"`
}

func (s Status) String() string {
	if s.Reason == ReasonNone {
		return string(s.State)
	}
	return fmt.Sprintf("%s(%s)", s.State, s.Reason)
}

// Transition is delivered to subscribers on every state change.
type Transition struct {
	From Status `json:"from"`
	To   Status `json:"to"`
}

// Config tunes staleness decisions and rebuild fan-out.
type Config struct {
	// SmallEditThreshold is the unsaved edit size that marks a file edited.
	SmallEditThreshold int
	// BulkThreshold is the number of paths above which a pass is a bulk change.
	BulkThreshold int
	// Debounce is the idle period after the last change before rebuilding.
	Debounce      time.Duration
	RebuildOnSave bool
	Workers       int
	// MaxFileSizeBytes skips larger files without reading them.
	MaxFileSizeBytes int
}

// DefaultConfig returns the defaults used when no configuration is given.
func DefaultConfig() Config {
	return ConfigFrom(config.DefaultConfig())
}

// ConfigFrom extracts the incremental settings from a workspace config.
func ConfigFrom(c *config.Config) Config {
	return Config{
		SmallEditThreshold: c.Index.SmallEditThreshold,
		BulkThreshold:      c.Index.BulkThreshold,
		Debounce:           time.Duration(c.Index.DebounceMs) * time.Millisecond,
		RebuildOnSave:      c.Index.RebuildOnSave,
		Workers:            c.Index.Workers,
		MaxFileSizeBytes:   c.Parser.MaxFileSizeBytes,
	}
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Debounce <= 0 {
		c.Debounce = 750 * time.Millisecond
	}
	if c.MaxFileSizeBytes <= 0 {
		c.MaxFileSizeBytes = parser.DefaultMaxFileSize
	}
	return c
}

// SkipSummary counts files that contributed no facts, by reason.
type SkipSummary map[parser.SkipReason]int

// Add records one skipped file. SkipNone is ignored.
func (s SkipSummary) Add(r parser.SkipReason) {
	if r != parser.SkipNone {
		s[r]++
	}
}

// Total returns the number of skipped files.
func (s SkipSummary) Total() int {
	n := 0
	for _, c := range s {
		n += c
	}
	return n
}

// String renders the user-facing summary, or "" when nothing was skipped.
func (s SkipSummary) String() string {
	total := s.Total()
	if total == 0 {
		return ""
	}
	known := make(map[parser.SkipReason]bool)
	var parts []string
	for _, r := range parser.SkipReasons() {
		known[r] = true
		if s[r] > 0 {
			parts = append(parts, fmt.Sprintf("%s: %d", r, s[r]))
		}
	}
	var other []string
	for r, c := range s {
		if !known[r] && c > 0 {
			other = append(other, fmt.Sprintf("%s: %d", r, c))
		}
	}
	sort.Strings(other)
	parts = append(parts, other...)

	noun := "files"
	if total == 1 {
		noun = "file"
	}
	return fmt.Sprintf("%d %s could not be analyzed (reasons: %s)", total, noun, strings.Join(parts, ", "))
}

// DeltaStats describes one rebuild pass.
type DeltaStats struct {
	Full     bool          `json:"full"`
	Bulk     bool          `json:"bulk,omitempty"`
	Parsed   int           `json:"parsed"`
	Created  int           `json:"created"`
	Modified int           `json:"modified"`
	Deleted  int           `json:"deleted"`
	Relinked int           `json:"relinked"`
	Files    int           `json:"files"`
	Skips    SkipSummary   `json:"skips,omitempty"`
	Duration time.Duration `json:"duration"`
}
