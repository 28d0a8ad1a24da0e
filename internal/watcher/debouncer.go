package watcher

import (
	"os"
	"sync"
	"time"
)

// debounceEntry tracks a pending debounced event.
type debounceEntry struct {
	timer *time.Timer
	path  string
}

// Debouncer coalesces rapid file change events.
// It waits for a quiet period before firing the callback.
type Debouncer struct {
	mu             sync.Mutex
	pending        map[string]*debounceEntry
	pendingDeletes map[string]*debounceEntry // keyed by path
	interval       time.Duration
	deleteInterval time.Duration // shorter interval for delete verification
	callback       func(key, path string)
	stopped        bool
}

// NewDebouncer creates a debouncer that calls callback once events for a
// key have been quiet for interval.
func NewDebouncer(interval time.Duration, callback func(key, path string)) *Debouncer {
	return &Debouncer{
		pending:        make(map[string]*debounceEntry),
		pendingDeletes: make(map[string]*debounceEntry),
		interval:       interval,
		deleteInterval: 100 * time.Millisecond, // Short delay to catch rename scenarios
		callback:       callback,
	}
}

// Trigger registers an event for key. A pending event for the same key
// has its timer reset.
func (d *Debouncer) Trigger(key, path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if entry, exists := d.pending[key]; exists {
		entry.timer.Stop()
		entry.path = path
		entry.timer = time.AfterFunc(d.interval, func() {
			d.fire(key)
		})
		return
	}

	d.pending[key] = &debounceEntry{
		path: path,
		timer: time.AfterFunc(d.interval, func() {
			d.fire(key)
		}),
	}
}

// fire executes the callback for a debounced event.
func (d *Debouncer) fire(key string) {
	d.mu.Lock()
	entry, exists := d.pending[key]
	if !exists || d.stopped {
		d.mu.Unlock()
		return
	}
	path := entry.path
	delete(d.pending, key)
	d.mu.Unlock()

	// Call the callback outside the lock
	d.callback(key, path)
}

// TriggerDelete schedules a delete verification for path. If the file is
// really gone after a short delay, key is triggered as a normal event.
// Renames, atomic saves and git checkouts produce removes for files that
// come straight back.
func (d *Debouncer) TriggerDelete(key, path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if entry, exists := d.pendingDeletes[path]; exists {
		entry.timer.Stop()
	}
	d.pendingDeletes[path] = &debounceEntry{
		path: path,
		timer: time.AfterFunc(d.deleteInterval, func() {
			d.fireDelete(key, path)
		}),
	}
}

// CancelDelete cancels a pending delete verification for path.
func (d *Debouncer) CancelDelete(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if entry, exists := d.pendingDeletes[path]; exists {
		entry.timer.Stop()
		delete(d.pendingDeletes, path)
	}
}

// fireDelete verifies the deletion and triggers key if confirmed.
func (d *Debouncer) fireDelete(key, path string) {
	d.mu.Lock()
	_, exists := d.pendingDeletes[path]
	if !exists || d.stopped {
		d.mu.Unlock()
		return
	}
	delete(d.pendingDeletes, path)
	d.mu.Unlock()

	if _, err := os.Stat(path); err == nil {
		// File still exists - this was a false positive (likely rename or atomic save)
		return
	}
	d.Trigger(key, path)
}

// Stop cancels all pending timers and prevents new events.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true

	for key, entry := range d.pending {
		entry.timer.Stop()
		delete(d.pending, key)
	}
	for path, entry := range d.pendingDeletes {
		entry.timer.Stop()
		delete(d.pendingDeletes, path)
	}
}

// PendingCount returns the number of pending debounced events.
func (d *Debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// PendingDeleteCount returns the number of unverified deletes.
func (d *Debouncer) PendingDeleteCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pendingDeletes)
}
