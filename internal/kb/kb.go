// Package kb renders the knowledge base: fixed-budget markdown summaries of
// the dependency graph for AI coding assistants.
//
// Reports are pure functions of a graph snapshot and the build fingerprint,
// so an unchanged workspace always yields byte-identical files.
package kb

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"codekb/internal/config"
	"codekb/internal/graph"
	"codekb/internal/index"
	"codekb/internal/paths"
)

const (
	ArchitectureFile = "architecture.md"
	SymbolsFile      = "symbols.md"
	ModulesFile      = "modules.md"
)

// Options caps each report in characters.
type Options struct {
	ArchitectureChars int
	SymbolsChars      int
	ModulesChars      int
	TopHubs           int
}

// DefaultOptions mirrors the defaults of the kb config section.
func DefaultOptions() Options {
	return OptionsFrom(config.DefaultConfig().KB)
}

// OptionsFrom converts the kb config section.
func OptionsFrom(c config.KBConfig) Options {
	return Options{
		ArchitectureChars: c.ArchitectureChars,
		SymbolsChars:      c.SymbolsChars,
		ModulesChars:      c.ModulesChars,
		TopHubs:           c.TopHubs,
	}
}

func (o Options) withDefaults() Options {
	if o.ArchitectureChars <= reserve {
		o.ArchitectureChars = 12000
	}
	if o.SymbolsChars <= reserve {
		o.SymbolsChars = 16000
	}
	if o.ModulesChars <= reserve {
		o.ModulesChars = 8000
	}
	if o.TopHubs <= 0 {
		o.TopHubs = 15
	}
	return o
}

// Report is one rendered knowledge base file.
type Report struct {
	Name      string `json:"name"`
	Content   string `json:"-"`
	Chars     int    `json:"chars"`
	Budget    int    `json:"budget"`
	Truncated bool   `json:"truncated"`
}

// Emitter renders and writes the knowledge base of one workspace.
type Emitter struct {
	root   string
	opts   Options
	logger *slog.Logger
}

// NewEmitter creates an emitter writing below the workspace state directory.
func NewEmitter(root string, opts Options, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Emitter{root: root, opts: opts.withDefaults(), logger: logger}
}

// Dir returns the directory reports are written to.
func (e *Emitter) Dir() string {
	return paths.KBDir(e.root)
}

// Render produces all reports without touching the disk.
func (e *Emitter) Render(snap *graph.Snapshot, fp *index.Fingerprint) []Report {
	return []Report{
		renderArchitecture(snap, fp, e.opts),
		renderSymbols(snap, e.opts),
		renderModules(snap, e.opts),
	}
}

// Emit renders the reports and replaces each file atomically. A failure
// leaves the previous version of any file not yet written in place.
func (e *Emitter) Emit(ctx context.Context, snap *graph.Snapshot, fp *index.Fingerprint) ([]Report, error) {
	start := time.Now()
	reports := e.Render(snap, fp)

	dir := e.Dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}
	for _, r := range reports {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := index.WriteFileAtomic(filepath.Join(dir, r.Name), []byte(r.Content)); err != nil {
			return nil, fmt.Errorf("writing %s: %w", r.Name, err)
		}
		if r.Truncated {
			e.logger.Debug("Knowledge base report truncated", "file", r.Name, "budget", r.Budget)
		}
	}

	e.logger.Info("Knowledge base written",
		"dir", dir,
		"files", len(reports),
		"duration", time.Since(start),
	)
	return reports, nil
}

func newReport(name string, w *budgetWriter) Report {
	content := w.Finish()
	return Report{
		Name:      name,
		Content:   content,
		Chars:     len(content),
		Budget:    w.limit,
		Truncated: w.Truncated(),
	}
}
