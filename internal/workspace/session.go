// Package workspace owns one analysis session per workspace root and wires
// discovery, parsing, resolution, the graph, persistence and the staleness
// tracker together.
package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codekb/internal/config"
	"codekb/internal/discovery"
	kberrors "codekb/internal/errors"
	"codekb/internal/graph"
	"codekb/internal/incremental"
	"codekb/internal/index"
	"codekb/internal/kb"
	"codekb/internal/lang"
	"codekb/internal/parser"
	"codekb/internal/paths"
	"codekb/internal/resolver"
	"codekb/internal/slogutil"
	"codekb/internal/storage"
	"codekb/internal/watcher"
)

// Options customises Open. Zero values select the defaults.
type Options struct {
	// Config overrides .codekb/config.json.
	Config *config.Config
	Logger *slog.Logger
	// Parser replaces the tree-sitter parser.
	Parser incremental.SourceParser
	// Source replaces reading files from disk.
	Source incremental.FileSource
}

// Session is the single owner of one workspace's analysis state.
type Session struct {
	root     string
	stateDir string
	cfg      *config.Config
	logger   *slog.Logger

	discovery *discovery.Discoverer
	settings  discovery.Settings
	parser    *parser.Parser // nil when Options.Parser was given
	resolver  *resolver.Resolver
	graph     *graph.Graph
	db        *storage.DB
	store     *storage.GraphStore
	indexer   *incremental.IncrementalIndexer
	tracker   *incremental.Tracker
	emitter   *kb.Emitter
	startup   incremental.StartupCheck

	mu      sync.Mutex
	watcher *watcher.Watcher
	closed  bool
}

// Open starts a session for root. A previously persisted graph is loaded
// and compared against the workspace; the session starts Fresh when nothing
// changed, and Stale otherwise. Open does not rebuild.
func Open(ctx context.Context, root string, opts Options) (*Session, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, kberrors.New(kberrors.WorkspaceUnreadable, "cannot resolve workspace root", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, kberrors.New(kberrors.WorkspaceUnreadable, "workspace root is not readable", err)
	}
	if !info.IsDir() {
		return nil, kberrors.Newf(kberrors.WorkspaceUnreadable, "workspace root %s is not a directory", abs)
	}

	cfg := opts.Config
	if cfg == nil {
		if cfg, err = config.LoadConfig(abs); err != nil {
			return nil, kberrors.New(kberrors.ConfigInvalid, "failed to load configuration", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, kberrors.New(kberrors.ConfigInvalid, err.Error(), err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}

	s := &Session{
		root:     abs,
		stateDir: paths.StateDir(abs),
		cfg:      cfg,
		logger:   slogutil.Component(logger, "workspace"),
		settings: discovery.FromConfig(cfg.Exclusions),
		graph:    graph.New(),
	}
	s.discovery = discovery.New(discovery.Options{
		TTL:       time.Duration(cfg.Discovery.CacheTtlSeconds) * time.Second,
		CacheSize: cfg.Discovery.CacheSize,
	}, slogutil.Component(logger, "discovery"))
	s.resolver = resolver.New(abs, resolver.Options{SourceRoots: cfg.Resolver.SourceRoots})

	src := opts.Parser
	if src == nil {
		s.parser = parser.New(parserOptions(cfg))
		src = s.parser
	}
	source := opts.Source
	if source == nil {
		source = incremental.DiskSource{Root: abs}
	}

	if s.db, err = storage.Open(abs, slogutil.Component(logger, "storage")); err != nil {
		s.closeResources()
		return nil, err
	}
	s.store = storage.NewGraphStore(s.db)

	if err := s.loadGraph(); err != nil {
		s.closeResources()
		return nil, err
	}

	icfg := incremental.ConfigFrom(cfg)
	lister := discoveryLister{discoverer: s.discovery, root: abs, settings: s.settings}
	ilog := slogutil.Component(logger, "incremental")
	ex := incremental.NewExtractor(source, src, s.resolver, icfg.MaxFileSizeBytes)
	updater := incremental.NewIndexUpdater(abs, s.graph, ex, s.resolver, lister, s.store, icfg, ilog)
	detector := incremental.NewChangeDetector(abs, lister, s.store, ilog)
	s.indexer = incremental.NewIncrementalIndexer(s.stateDir, updater, detector, ilog)
	s.emitter = kb.NewEmitter(abs, kb.OptionsFrom(cfg.KB), slogutil.Component(logger, "kb"))
	s.tracker = incremental.NewTracker(&kbRunner{session: s}, icfg, ilog)

	if err := s.checkStartup(ctx); err != nil {
		s.tracker.Close()
		s.closeResources()
		return nil, err
	}
	return s, nil
}

func parserOptions(cfg *config.Config) parser.Options {
	opts := parser.Options{
		MaxFileSizeBytes: cfg.Parser.MaxFileSizeBytes,
		MaxDepth:         cfg.Parser.MaxDepth,
	}
	for _, name := range cfg.Parser.Languages {
		if l, ok := lang.Parse(name); ok {
			opts.Languages = append(opts.Languages, l)
		}
	}
	return opts
}

// loadGraph restores the graph committed by a previous session.
func (s *Session) loadGraph() error {
	facts, err := s.store.LoadFacts()
	if err != nil {
		return fmt.Errorf("loading persisted graph: %w", err)
	}
	if len(facts) == 0 {
		return nil
	}
	batch := make(graph.Batch, 0, len(facts))
	for _, f := range facts {
		batch = append(batch, graph.Op{Kind: graph.OpUpsert, Facts: f})
	}
	s.graph.Apply(batch)
	s.logger.Debug("Loaded persisted graph", "files", len(facts))
	return nil
}

func (s *Session) checkStartup(ctx context.Context) error {
	check, err := s.indexer.CheckStartup(ctx)
	if err != nil {
		return err
	}
	s.startup = check

	switch {
	case check.Fresh:
		s.logger.Info("Index is fresh", "files", check.Current.FileCount)
	case check.Persisted == nil:
		s.tracker.Invalidate(incremental.ReasonStructural, true)
	default:
		s.tracker.Enqueue(incremental.ReasonStructural, check.Events())
	}
	return nil
}

// Root returns the absolute workspace root.
func (s *Session) Root() string { return s.root }

// Config returns the effective configuration.
func (s *Session) Config() *config.Config { return s.cfg }

// Startup returns the result of the staleness check made by Open.
func (s *Session) Startup() incremental.StartupCheck { return s.startup }

// GraphSnapshot returns an immutable view of the current graph.
func (s *Session) GraphSnapshot() *graph.Snapshot { return s.graph.Snapshot() }

// HubRanking returns the n most imported files.
func (s *Session) HubRanking(n int) []graph.HubEntry { return s.graph.HubRanking(n) }

// ImportersOf returns the files importing path.
func (s *Session) ImportersOf(path string) []string {
	return s.graph.ImportersOf(paths.NormalizePath(path))
}

// ImportedBy returns the files path imports.
func (s *Session) ImportedBy(path string) []string {
	return s.graph.ImportedBy(paths.NormalizePath(path))
}

// IsStale reports whether the graph may not reflect the workspace.
func (s *Session) IsStale() bool { return s.tracker.IsStale() }

// Status returns the tracker state.
func (s *Session) Status() incremental.Status { return s.tracker.Status() }

// Subscribe registers fn for staleness transitions.
func (s *Session) Subscribe(fn func(incremental.Transition)) (unsubscribe func()) {
	return s.tracker.Subscribe(fn)
}

// Fingerprint returns the record of the last committed build, or nil.
func (s *Session) Fingerprint() *index.Fingerprint { return s.indexer.Fingerprint() }

// SkipCounts returns the persisted per-reason counts of unanalysed files.
func (s *Session) SkipCounts() (incremental.SkipSummary, error) {
	counts, err := s.store.SkipCounts()
	if err != nil {
		return nil, err
	}
	return incremental.SkipSummary(counts), nil
}

// Notify feeds change events into the tracker. Creates and edits of files
// that discovery excludes are dropped unless the file is already indexed.
func (s *Session) Notify(events ...incremental.ChangeEvent) {
	kept := make([]incremental.ChangeEvent, 0, len(events))
	for _, ev := range events {
		if ev.Kind != incremental.ChangeDeleted &&
			discovery.Excluded(s.root, ev.Path, s.settings) &&
			!s.graph.HasFile(ev.Path) {
			continue
		}
		kept = append(kept, ev)
	}
	if len(kept) > 0 {
		s.tracker.Notify(kept...)
	}
}

// Rebuild brings the graph up to date with everything queued so far.
func (s *Session) Rebuild(ctx context.Context) (incremental.DeltaStats, error) {
	return s.tracker.Rebuild(ctx)
}

// ForceRebuild discards the incremental state and reparses every file.
func (s *Session) ForceRebuild(ctx context.Context) (incremental.DeltaStats, error) {
	s.discovery.Invalidate(s.root)
	s.tracker.Invalidate(incremental.ReasonForced, true)
	return s.tracker.Rebuild(ctx)
}

// EmitKB writes the knowledge base for the current graph.
func (s *Session) EmitKB(ctx context.Context) ([]kb.Report, error) {
	return s.emitter.Emit(ctx, s.graph.Snapshot(), s.indexer.Fingerprint())
}

// KBDir returns where the knowledge base is written.
func (s *Session) KBDir() string { return s.emitter.Dir() }

// Close stops watching, waits for background rebuilds and releases
// the parser and the database.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()

	if w != nil {
		if err := w.Stop(); err != nil {
			s.logger.Debug("Stopping watcher", "error", err.Error())
		}
	}
	s.tracker.Close()
	return s.closeResources()
}

func (s *Session) closeResources() error {
	if s.parser != nil {
		s.parser.Close()
	}
	if s.discovery != nil {
		s.discovery.InvalidateAll()
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
