package watcher

import (
	"sync"
	"time"
)

// Debouncer collects change reports and hands their merge to a callback once
// no new report has arrived for the delay.
type Debouncer struct {
	delay time.Duration
	fire  func(*ChangeReport)

	mu    sync.Mutex
	timer *time.Timer
	batch *ChangeReport
	gen   uint64
}

// NewDebouncer creates a debouncer that calls fire with each quiet batch.
func NewDebouncer(delay time.Duration, fire func(*ChangeReport)) *Debouncer {
	return &Debouncer{delay: delay, fire: fire}
}

// Add merges report into the waiting batch and restarts the delay.
func (d *Debouncer) Add(report *ChangeReport) {
	if report.Empty() {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.batch == nil {
		d.batch = report
	} else {
		d.batch.Merge(report)
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() { d.release(gen) })
}

// release fires the batch unless a later Add restarted the delay.
func (d *Debouncer) release(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	batch := d.take()
	d.mu.Unlock()

	if batch != nil {
		d.fire(batch)
	}
}

// take detaches the waiting batch. d.mu must be held.
func (d *Debouncer) take() *ChangeReport {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	batch := d.batch
	d.batch = nil
	return batch
}

// Cancel drops the waiting batch and returns it.
func (d *Debouncer) Cancel() *ChangeReport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.take()
}

// Flush fires the waiting batch immediately.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	batch := d.take()
	d.mu.Unlock()

	if batch != nil {
		d.fire(batch)
	}
}

// Pending returns the number of changed paths waiting to fire.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.batch.Empty() {
		return 0
	}
	return max(len(d.batch.Paths()), 1)
}
