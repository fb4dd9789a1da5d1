package incremental

import (
	"context"
	"log/slog"
	"path"
	"sort"
	"sync"
	"time"

	kberrors "codekb/internal/errors"
	"codekb/internal/lang"
	"codekb/internal/watcher"
)

// Runner performs the actual rebuild work. *IncrementalIndexer implements it.
type Runner interface {
	Full(ctx context.Context) (DeltaStats, error)
	Incremental(ctx context.Context, events []ChangeEvent) (DeltaStats, error)
}

// Tracker owns the Fresh/Stale/Rebuilding state machine. At most one
// rebuild runs at a time; events that arrive during a rebuild are queued and
// covered by a follow-up rebuild.
type Tracker struct {
	runner Runner
	cfg    Config
	logger *slog.Logger
	idle   *watcher.Debouncer

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	status   Status
	pending  []ChangeEvent
	queued   Reason
	needFull bool
	running  bool
	cancel   context.CancelFunc
	closed   bool

	subMu     sync.Mutex
	deliverMu sync.Mutex
	subs      map[int]func(Transition)
	nextSub   int
}

// NewTracker creates a tracker in the Fresh state.
func NewTracker(runner Runner, cfg Config, logger *slog.Logger) *Tracker {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Tracker{
		runner:  runner,
		cfg:     cfg,
		logger:  logger,
		idle:    watcher.NewDebouncer(cfg.Debounce),
		baseCtx: ctx,
		stop:    stop,
		status:  Status{State: StateFresh, Since: time.Now()},
		subs:    make(map[int]func(Transition)),
	}
}

// Status returns the current state.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.status
	s.Pending = len(t.pending)
	return s
}

// IsStale reports whether derived artifacts may not reflect the workspace.
func (t *Tracker) IsStale() bool {
	return t.Status().State != StateFresh
}

// Subscribe registers fn for state transitions and returns a function that
// removes it. Transitions are delivered one at a time, in order.
func (t *Tracker) Subscribe(fn func(Transition)) (unsubscribe func()) {
	t.subMu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn
	t.subMu.Unlock()

	return func() {
		t.subMu.Lock()
		delete(t.subs, id)
		t.subMu.Unlock()
	}
}

func (t *Tracker) publish(tr *Transition) {
	if tr == nil {
		return
	}
	t.subMu.Lock()
	ids := make([]int, 0, len(t.subs))
	for id := range t.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Transition), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, t.subs[id])
	}
	t.subMu.Unlock()

	t.deliverMu.Lock()
	defer t.deliverMu.Unlock()
	for _, fn := range fns {
		fn(*tr)
	}
}

// setLocked moves to next and returns the transition, or nil when nothing
// changed. Callers hold t.mu.
func (t *Tracker) setLocked(next Status) *Transition {
	prev := t.status
	prev.Pending = len(t.pending)
	if prev.State == next.State && prev.Reason == next.Reason {
		return nil
	}
	next.Since = time.Now()
	next.Pending = len(t.pending)
	t.status = next
	t.logger.Debug("Index state changed", "from", prev.String(), "to", next.String())
	return &Transition{From: prev, To: next}
}

// qualify decides whether ev makes the index stale, and why.
func (t *Tracker) qualify(ev ChangeEvent) (Reason, bool) {
	if ev.Path == "" {
		return ReasonNone, false
	}
	tracked := lang.IsTracked(ev.Path)
	switch ev.Kind {
	case ChangeCreated:
		return ReasonStructural, tracked
	case ChangeDeleted:
		// Extensionless deletes may be directories holding tracked files.
		return ReasonStructural, tracked || path.Ext(ev.Path) == ""
	case ChangeModified:
		if !tracked {
			return ReasonNone, false
		}
		if ev.Saved || ev.EditSize >= t.cfg.SmallEditThreshold {
			return ReasonEdited, true
		}
	}
	return ReasonNone, false
}

// rank orders reasons so a stronger reason is never downgraded.
func rank(r Reason) int {
	switch r {
	case ReasonEdited:
		return 1
	case ReasonStructural:
		return 2
	case ReasonForced:
		return 3
	default:
		return 0
	}
}

func stronger(a, b Reason) Reason {
	if rank(b) > rank(a) {
		return b
	}
	return a
}

// Notify feeds change events into the tracker. Qualifying events make the
// index stale and schedule a rebuild after the idle period, or immediately
// for saves when RebuildOnSave is set.
func (t *Tracker) Notify(events ...ChangeEvent) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}

	reason := ReasonNone
	saved := false
	for _, ev := range events {
		r, ok := t.qualify(ev)
		if !ok {
			continue
		}
		t.pending = append(t.pending, ev)
		reason = stronger(reason, r)
		saved = saved || ev.Saved
	}
	if reason == ReasonNone {
		t.mu.Unlock()
		return
	}

	var tr *Transition
	switch t.status.State {
	case StateRebuilding:
		t.queued = stronger(t.queued, reason)
	default:
		tr = t.setLocked(Status{State: StateStale, Reason: stronger(t.staleReasonLocked(), reason)})
	}
	rebuilding := t.running
	t.mu.Unlock()

	t.publish(tr)
	if rebuilding {
		return
	}
	if t.cfg.RebuildOnSave && saved {
		t.idle.Cancel()
		t.goRebuild()
		return
	}
	t.idle.Trigger(t.goRebuild)
}

func (t *Tracker) staleReasonLocked() Reason {
	if t.status.State == StateStale {
		return t.status.Reason
	}
	return ReasonNone
}

// Invalidate marks the index stale without a specific change set. full
// requests a rebuild of the whole workspace. The rebuild is not scheduled;
// call Rebuild or wait for the next change.
func (t *Tracker) Invalidate(reason Reason, full bool) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.needFull = t.needFull || full
	var tr *Transition
	if t.status.State == StateRebuilding {
		t.queued = stronger(t.queued, reason)
	} else {
		tr = t.setLocked(Status{State: StateStale, Reason: stronger(t.staleReasonLocked(), reason)})
	}
	t.mu.Unlock()
	t.publish(tr)
}

// Enqueue marks the index stale for reason with a known change set, e.g. the
// result of the startup check. The rebuild is not scheduled.
func (t *Tracker) Enqueue(reason Reason, events []ChangeEvent) {
	t.mu.Lock()
	t.pending = append(t.pending, events...)
	t.mu.Unlock()
	t.Invalidate(reason, false)
}

// goRebuild runs a rebuild on a background goroutine tracked by Close.
func (t *Tracker) goRebuild() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()
		if _, err := t.Rebuild(t.baseCtx); err != nil && !kberrors.Is(err, kberrors.RebuildInProgress) {
			t.logger.Error("Background rebuild failed", "error", err.Error())
		}
	}()
}

// Rebuild runs one rebuild covering everything queued so far. It returns a
// REBUILD_IN_PROGRESS error when another rebuild is running and does
// nothing when the index is fresh. On failure the previous Stale state and
// its queued events are restored.
func (t *Tracker) Rebuild(ctx context.Context) (DeltaStats, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return DeltaStats{}, kberrors.Newf(kberrors.InternalError, "tracker is closed")
	}
	if t.running {
		t.mu.Unlock()
		return DeltaStats{}, kberrors.Newf(kberrors.RebuildInProgress, "a rebuild is already running")
	}
	if t.status.State == StateFresh && !t.needFull && len(t.pending) == 0 {
		t.mu.Unlock()
		return DeltaStats{}, nil
	}

	events := t.pending
	full := t.needFull
	prev := t.status
	t.pending = nil
	t.needFull = false
	t.queued = ReasonNone

	rctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.running = true
	tr := t.setLocked(Status{State: StateRebuilding, Reason: prev.Reason})
	t.mu.Unlock()

	t.idle.Cancel()
	t.publish(tr)

	var (
		stats DeltaStats
		err   error
	)
	if full {
		stats, err = t.runner.Full(rctx)
	} else {
		stats, err = t.runner.Incremental(rctx, events)
	}
	cancel()

	t.mu.Lock()
	t.running = false
	t.cancel = nil
	var next Status
	followUp := false
	switch {
	case err != nil:
		t.pending = append(events, t.pending...)
		t.needFull = t.needFull || full
		next = Status{State: StateStale, Reason: stronger(prev.Reason, t.queued)}
		if next.Reason == ReasonNone {
			next.Reason = ReasonForced
		}
	case len(t.pending) > 0 || t.needFull:
		next = Status{State: StateStale, Reason: t.queued}
		followUp = true
	default:
		next = Status{State: StateFresh}
	}
	t.queued = ReasonNone
	tr = t.setLocked(next)
	t.mu.Unlock()

	t.publish(tr)
	if err != nil {
		t.logger.Warn("Rebuild failed, keeping previous index", "error", err.Error())
		return stats, err
	}
	if followUp && !t.isClosed() {
		t.idle.Trigger(t.goRebuild)
	}
	return stats, nil
}

// Cancel stops a running rebuild. Its events stay queued.
func (t *Tracker) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
}

// Running reports whether a rebuild is in progress.
func (t *Tracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Tracker) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Close cancels pending and running work and waits for background rebuilds.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	if t.cancel != nil {
		t.cancel()
	}
	t.mu.Unlock()

	t.idle.Cancel()
	t.stop()
	t.wg.Wait()
}
