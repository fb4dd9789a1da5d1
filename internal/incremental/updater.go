package incremental

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	kberrors "codekb/internal/errors"
	"codekb/internal/graph"
	"codekb/internal/index"
	"codekb/internal/lang"
	"codekb/internal/resolver"
)

// IndexUpdater applies change batches and full rebuilds to the graph and
// the store. It is driven by one goroutine at a time.
type IndexUpdater struct {
	root      string
	graph     *graph.Graph
	extractor *Extractor
	deps      *dependentsTracker
	lister    FileLister
	store     Store
	cfg       Config
	logger    *slog.Logger
	lastFP    atomic.Pointer[index.Fingerprint]
}

// NewIndexUpdater wires an updater for the workspace at root.
func NewIndexUpdater(root string, g *graph.Graph, ex *Extractor, r *resolver.Resolver, lister FileLister, store Store, cfg Config, logger *slog.Logger) *IndexUpdater {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &IndexUpdater{
		root:      root,
		graph:     g,
		extractor: ex,
		deps:      &dependentsTracker{graph: g, resolver: r},
		lister:    lister,
		store:     store,
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

// Fingerprint returns the fingerprint of the last committed build, or nil.
func (u *IndexUpdater) Fingerprint() *index.Fingerprint {
	return u.lastFP.Load()
}

// SetFingerprint records a fingerprint loaded from persistent state.
func (u *IndexUpdater) SetFingerprint(fp *index.Fingerprint) {
	u.lastFP.Store(fp)
}

type extracted struct {
	facts  graph.FileFacts
	exists bool
}

// extractAll parses paths on a bounded worker pool. Results keep the order
// of paths. Cancellation is checked before each file.
func (u *IndexUpdater) extractAll(ctx context.Context, paths []string) ([]extracted, error) {
	results := make([]extracted, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.cfg.Workers)

	for i, p := range paths {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			facts, ok := u.extractor.Extract(gctx, p)
			results[i] = extracted{facts: facts, exists: ok}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func cancelled(err error) error {
	return kberrors.New(kberrors.RebuildCancelled, "rebuild cancelled", err)
}

// coalesce keeps the last event per path, in order of first arrival.
func coalesce(events []ChangeEvent) []ChangeEvent {
	pos := make(map[string]int, len(events))
	out := make([]ChangeEvent, 0, len(events))
	for _, ev := range events {
		if ev.Path == "" {
			continue
		}
		if i, ok := pos[ev.Path]; ok {
			out[i] = ev
			continue
		}
		pos[ev.Path] = len(out)
		out = append(out, ev)
	}
	return out
}

// expandDirectoryDeletes replaces a delete of a directory with deletes of the
// graph files below it.
func (u *IndexUpdater) expandDirectoryDeletes(events []ChangeEvent) []ChangeEvent {
	var out []ChangeEvent
	var all []string
	for _, ev := range events {
		if ev.Kind != ChangeDeleted || lang.IsTracked(ev.Path) || u.graph.HasFile(ev.Path) {
			out = append(out, ev)
			continue
		}
		if all == nil {
			all = u.graph.Paths()
		}
		prefix := ev.Path + "/"
		for _, p := range all {
			if len(p) > len(prefix) && p[:len(prefix)] == prefix {
				out = append(out, ChangeEvent{Path: p, Kind: ChangeDeleted})
			}
		}
	}
	return coalesce(out)
}

// ApplyChanges re-parses the changed paths and relinks their one-hop
// importers. The batch reaches the graph only after the store commit: if the
// fingerprint or the commit fails, the graph is left untouched.
func (u *IndexUpdater) ApplyChanges(ctx context.Context, events []ChangeEvent) (stats DeltaStats, err error) {
	start := time.Now()
	stats.Skips = SkipSummary{}
	defer func() {
		stats.Duration = time.Since(start)
		recordRebuild(ctx, false, outcomeOf(err), stats.Duration, stats.Parsed)
	}()

	events = u.expandDirectoryDeletes(coalesce(events))
	paths := make([]string, 0, len(events))
	changed := make(map[string]bool, len(events))
	// Excluded paths are never parsed. One that is already a node, say after
	// its directory became ignored, is removed like a deleted file.
	gone := make(map[string]bool)
	for _, ev := range events {
		if !lang.IsTracked(ev.Path) {
			continue
		}
		if ev.Kind != ChangeDeleted && u.lister.Excluded(ev.Path) {
			if !u.graph.HasFile(ev.Path) {
				u.logger.Debug("Ignoring change to excluded file", "path", ev.Path)
				continue
			}
			gone[ev.Path] = true
		}
		paths = append(paths, ev.Path)
		changed[ev.Path] = true
	}

	if u.cfg.BulkThreshold > 0 && len(paths) > u.cfg.BulkThreshold {
		stats.Bulk = true
		u.logger.Info("Bulk change detected",
			"paths", len(paths),
			"threshold", u.cfg.BulkThreshold,
		)
	}

	parse := make([]string, 0, len(paths))
	for _, p := range paths {
		if !gone[p] {
			parse = append(parse, p)
		}
	}
	parsed, err := u.extractAll(ctx, parse)
	if err != nil {
		return stats, cancelled(err)
	}
	results := make(map[string]extracted, len(parsed))
	for i, p := range parse {
		results[p] = parsed[i]
	}

	var (
		batch   graph.Batch
		created []string
		deleted []string
	)
	for _, p := range paths {
		r := results[p]
		had := u.graph.HasFile(p)
		if !r.exists {
			stats.Skips.Add(r.facts.File.Skip)
			if had {
				deleted = append(deleted, p)
				batch = append(batch, graph.Op{Kind: graph.OpRemove, Path: p})
			}
			continue
		}
		if had {
			stats.Modified++
		} else {
			created = append(created, p)
		}
		stats.Parsed++
		stats.Skips.Add(r.facts.File.Skip)
		batch = append(batch, graph.Op{Kind: graph.OpUpsert, Facts: r.facts})
	}
	stats.Created = len(created)
	stats.Deleted = len(deleted)

	for _, src := range u.deps.affectedImporters(created, deleted, changed) {
		facts, ok := u.graph.Facts(src)
		if !ok {
			continue
		}
		edges := u.extractor.Link(src, facts.Imports)
		if sameEdges(edges, facts.Edges) {
			continue
		}
		batch = append(batch, graph.Op{Kind: graph.OpRelink, Path: src, Edges: edges})
		stats.Relinked++
	}

	fp, err := u.fingerprint(ctx, len(created)+len(deleted) > 0, start)
	if err != nil {
		return stats, err
	}
	stats.Files = fp.FileCount

	// The store commits first; readers of the graph only ever see the
	// committed result.
	var upserts []graph.FileFacts
	for _, op := range batch {
		switch op.Kind {
		case graph.OpUpsert:
			upserts = append(upserts, op.Facts)
		case graph.OpRelink:
			if f, ok := u.graph.Facts(op.Path); ok {
				f.Edges = op.Edges
				upserts = append(upserts, f)
			}
		}
	}
	if err := u.store.SaveDelta(upserts, deleted, fp); err != nil {
		return stats, fmt.Errorf("committing incremental update: %w", err)
	}
	u.graph.Apply(batch)
	u.commit(fp)

	u.logger.Info("Incremental update complete",
		"parsed", stats.Parsed,
		"created", stats.Created,
		"modified", stats.Modified,
		"deleted", stats.Deleted,
		"relinked", stats.Relinked,
		"duration", time.Since(start),
	)
	u.logSkips(stats.Skips)
	return stats, nil
}

// Rebuild parses every tracked file into a fresh graph and swaps it in only
// after the store commit succeeds. A cancelled rebuild discards the fresh graph.
func (u *IndexUpdater) Rebuild(ctx context.Context) (stats DeltaStats, err error) {
	start := time.Now()
	stats.Full = true
	stats.Skips = SkipSummary{}
	defer func() {
		stats.Duration = time.Since(start)
		recordRebuild(ctx, true, outcomeOf(err), stats.Duration, stats.Parsed)
	}()

	files, err := u.lister.ListFiles(ctx, true)
	if err != nil {
		if ctx.Err() != nil {
			return stats, cancelled(err)
		}
		return stats, err
	}

	results, err := u.extractAll(ctx, files)
	if err != nil {
		return stats, cancelled(err)
	}

	fresh := graph.New()
	batch := make(graph.Batch, 0, len(results))
	for _, r := range results {
		if !r.exists {
			stats.Skips.Add(r.facts.File.Skip)
			continue
		}
		stats.Parsed++
		stats.Skips.Add(r.facts.File.Skip)
		batch = append(batch, graph.Op{Kind: graph.OpUpsert, Facts: r.facts})
	}
	fresh.Apply(batch)

	sigs, err := index.StatFiles(u.root, files)
	if err != nil {
		return stats, fmt.Errorf("fingerprinting workspace: %w", err)
	}
	fp := index.Compute(sigs)
	fp.Stamp(start)
	stats.Files = fp.FileCount
	stats.Created = stats.Parsed

	if err := u.store.SaveGraph(fresh.Snapshot().AllFacts(), fp); err != nil {
		return stats, fmt.Errorf("committing rebuild: %w", err)
	}
	u.graph.Replace(fresh)
	u.commit(fp)

	u.logger.Info("Full rebuild complete",
		"files", stats.Files,
		"parsed", stats.Parsed,
		"duration", time.Since(start),
	)
	u.logSkips(stats.Skips)
	return stats, nil
}

func (u *IndexUpdater) fingerprint(ctx context.Context, structural bool, start time.Time) (index.Fingerprint, error) {
	files, err := u.lister.ListFiles(ctx, structural)
	if err != nil {
		return index.Fingerprint{}, fmt.Errorf("listing workspace files: %w", err)
	}
	sigs, err := index.StatFiles(u.root, files)
	if err != nil {
		return index.Fingerprint{}, fmt.Errorf("fingerprinting workspace: %w", err)
	}
	fp := index.Compute(sigs)
	fp.Stamp(start)
	return fp, nil
}

// commit publishes fp after a successful store commit. The JSON mirror is
// informational; the database row is authoritative.
func (u *IndexUpdater) commit(fp index.Fingerprint) {
	u.lastFP.Store(&fp)
	if err := fp.Save(u.root); err != nil {
		u.logger.Warn("Failed to write fingerprint file", "error", err.Error())
	}
}

func (u *IndexUpdater) logSkips(s SkipSummary) {
	if msg := s.String(); msg != "" {
		u.logger.Warn(msg)
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case kberrors.Is(err, kberrors.RebuildCancelled):
		return outcomeCancelled
	default:
		return outcomeError
	}
}

func sameEdges(a, b []graph.ImportEdge) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
