package watcher

import (
	"sync"
	"time"
)

// Debouncer delays execution until a quiet period has passed.
type Debouncer struct {
	delay   time.Duration
	timer   *time.Timer
	mu      sync.Mutex
	pending func()
}

// NewDebouncer creates a debouncer with the given quiet period.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Trigger schedules fn, replacing any pending function and restarting the timer.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = fn
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		fn := d.pending
		d.pending = nil
		d.timer = nil
		d.mu.Unlock()

		if fn != nil {
			fn()
		}
	})
}

// Pending reports whether a function is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// Cancel drops any pending execution.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
}

// Flush runs any pending function immediately on the caller's goroutine.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	fn := d.pending
	d.pending = nil
	d.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// BatchDebouncer collects items and emits them as one batch once no new
// item has arrived for the delay.
type BatchDebouncer[T any] struct {
	delay time.Duration
	timer *time.Timer
	mu    sync.Mutex
	items []T
	emit  func([]T)
}

// NewBatchDebouncer creates a batch debouncer that calls emit with each batch.
func NewBatchDebouncer[T any](delay time.Duration, emit func([]T)) *BatchDebouncer[T] {
	return &BatchDebouncer[T]{delay: delay, emit: emit}
}

// Add appends an item and restarts the quiet period.
func (b *BatchDebouncer[T]) Add(items ...T) {
	if len(items) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items = append(b.items, items...)
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.delay, b.flush)
}

func (b *BatchDebouncer[T]) flush() {
	b.mu.Lock()
	items := b.items
	b.items = nil
	b.timer = nil
	b.mu.Unlock()

	if len(items) > 0 && b.emit != nil {
		b.emit(items)
	}
}

// Cancel drops pending items without emitting them.
func (b *BatchDebouncer[T]) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.items = nil
}

// Flush emits pending items immediately.
func (b *BatchDebouncer[T]) Flush() {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.mu.Unlock()

	b.flush()
}

// Len returns the number of pending items.
func (b *BatchDebouncer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
