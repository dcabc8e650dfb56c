package llm

import (
	"strings"
	"sync"
	"time"
)

// DefaultDebounceInterval is the flush window used when none is configured.
const DefaultDebounceInterval = 250 * time.Millisecond

// Debouncer coalesces streamed text increments so the consumer is invoked at
// most once per interval. The window is measured from the last flush, not
// from each delivery: a burst of additions within one window produces a
// single callback with their concatenation, and an addition arriving after
// the window has elapsed flushes immediately. Order is preserved and every
// byte is delivered exactly once; only timing is coalesced.
type Debouncer struct {
	mu        sync.Mutex
	interval  time.Duration
	deliver   func(string)
	buf       strings.Builder
	lastFlush time.Time
	timer     *time.Timer
}

// NewDebouncer creates a debouncer delivering to fn. A non-positive interval
// falls back to DefaultDebounceInterval. The window starts at construction,
// so the leading burst of a fresh stream coalesces too.
func NewDebouncer(interval time.Duration, fn func(string)) *Debouncer {
	if interval <= 0 {
		interval = DefaultDebounceInterval
	}
	return &Debouncer{
		interval:  interval,
		deliver:   fn,
		lastFlush: time.Now(),
	}
}

// Add buffers s and schedules or performs a flush according to the window.
func (d *Debouncer) Add(s string) {
	if s == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.buf.WriteString(s)
	if d.timer != nil {
		return // flush already scheduled
	}

	since := time.Since(d.lastFlush)
	if since >= d.interval {
		d.flushLocked()
		return
	}
	d.timer = time.AfterFunc(d.interval-since, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.timer = nil
		d.flushLocked()
	})
}

// Flush delivers any buffered content immediately and cancels a pending
// scheduled flush. Call it when the stream completes so the tail is not
// left waiting out the window.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopTimerLocked()
	d.flushLocked()
}

// Stop cancels any pending flush without delivering buffered content.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopTimerLocked()
	d.buf.Reset()
}

func (d *Debouncer) stopTimerLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// flushLocked delivers the buffer and resets the window. The callback runs
// under the lock; it must not call back into the debouncer.
func (d *Debouncer) flushLocked() {
	d.lastFlush = time.Now()
	if d.buf.Len() == 0 {
		return
	}
	out := d.buf.String()
	d.buf.Reset()
	d.deliver(out)
}
