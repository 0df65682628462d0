// Package search implements the debounced full-text setting search.
package search

import (
	"sync"
	"time"
)

// Debouncer calls fn once with the latest term after delay has passed
// without another Trigger.
type Debouncer struct {
	delay time.Duration
	fn    func(term string)

	mu       sync.Mutex
	timer    *time.Timer
	latest   string
	stopped  bool
	inflight sync.WaitGroup
}

// NewDebouncer creates a debouncer.
func NewDebouncer(delay time.Duration, fn func(term string)) *Debouncer {
	return &Debouncer{delay: delay, fn: fn}
}

// Trigger records term and restarts the quiet period.
func (d *Debouncer) Trigger(term string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.latest = term
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
}

// Cancel drops a pending call without firing it.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Stop cancels a pending call, ignores later triggers and waits for a call
// that already started.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()
	d.inflight.Wait()
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	term := d.latest
	d.timer = nil
	d.inflight.Add(1)
	d.mu.Unlock()

	defer d.inflight.Done()
	d.fn(term)
}
