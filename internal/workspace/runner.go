package workspace

import (
	"context"

	"codekb/internal/discovery"
	"codekb/internal/incremental"
)

// discoveryLister adapts the discovery cache to the incremental FileLister.
type discoveryLister struct {
	discoverer *discovery.Discoverer
	root       string
	settings   discovery.Settings
}

func (l discoveryLister) ListFiles(ctx context.Context, fresh bool) ([]string, error) {
	if fresh {
		l.discoverer.Invalidate(l.root)
	}
	return l.discoverer.Discover(ctx, l.root, l.settings)
}

func (l discoveryLister) Excluded(rel string) bool {
	return discovery.Excluded(l.root, rel, l.settings)
}

// kbRunner runs rebuilds and refreshes the knowledge base after each commit.
// A failed KB write is logged; the committed graph stays authoritative.
type kbRunner struct {
	session *Session
}

func (r *kbRunner) Full(ctx context.Context) (incremental.DeltaStats, error) {
	stats, err := r.session.indexer.Full(ctx)
	if err == nil {
		r.emit(ctx)
	}
	return stats, err
}

func (r *kbRunner) Incremental(ctx context.Context, events []incremental.ChangeEvent) (incremental.DeltaStats, error) {
	stats, err := r.session.indexer.Incremental(ctx, events)
	if err == nil {
		r.emit(ctx)
	}
	return stats, err
}

func (r *kbRunner) emit(ctx context.Context) {
	s := r.session
	if !s.cfg.KB.Enabled {
		return
	}
	if _, err := s.EmitKB(ctx); err != nil {
		s.logger.Warn("Failed to write knowledge base", "error", err.Error())
	}
}
