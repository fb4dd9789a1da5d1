package workspace

import (
	"context"
	"time"

	kberrors "codekb/internal/errors"
	"codekb/internal/incremental"
	"codekb/internal/slogutil"
	"codekb/internal/watcher"
)

// watchBatch groups the bursts of notifications a single save produces.
// The tracker's own idle period decides when to rebuild.
const watchBatch = 100 * time.Millisecond

// Watch starts feeding file system changes into the tracker until ctx ends
// or the session is closed.
func (s *Session) Watch(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return kberrors.Newf(kberrors.InternalError, "session is closed")
	}
	if s.watcher != nil {
		return nil
	}

	w, err := watcher.New(s.root, watcher.Config{
		Debounce:   watchBatch,
		ExcludeDir: s.discovery.DirFilter(s.root, s.settings),
	}, slogutil.Component(s.logger, "watcher"), func(events []watcher.Event) {
		s.tracker.Notify(toChangeEvents(events)...)
	})
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		_ = w.Stop()
		return err
	}
	s.watcher = w
	return nil
}

func toChangeEvents(events []watcher.Event) []incremental.ChangeEvent {
	out := make([]incremental.ChangeEvent, 0, len(events))
	for _, ev := range events {
		ce := incremental.ChangeEvent{Path: ev.Path, Saved: true}
		switch ev.Type {
		case watcher.EventCreate:
			ce.Kind = incremental.ChangeCreated
		case watcher.EventModify:
			ce.Kind = incremental.ChangeModified
		case watcher.EventDelete:
			ce.Kind = incremental.ChangeDeleted
			ce.Saved = false
		default:
			continue
		}
		out = append(out, ce)
	}
	return out
}
