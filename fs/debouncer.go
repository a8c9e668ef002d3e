package fs

import (
	"sync"
	"sync/atomic"
	"time"
)

// debouncer coalesces rapid filesystem events so a burst of writes to the
// same path is processed once. Deletes bypass the delay.
type debouncer struct {
	mu        sync.Mutex
	pending   map[string]*pendingEvent
	delay     time.Duration
	onProcess func(path string, eventType EventType)
	stopping  atomic.Bool
}

type pendingEvent struct {
	timer     *time.Timer
	eventType EventType
}

func newDebouncer(delay time.Duration, onProcess func(path string, eventType EventType)) *debouncer {
	return &debouncer{
		pending:   make(map[string]*pendingEvent),
		delay:     delay,
		onProcess: onProcess,
	}
}

// Queue adds an event for a path. Deletes are dispatched immediately and
// cancel any pending event. Creates and writes wait for the delay, with
// new events for the same path resetting the timer. Returns false when
// the debouncer is shutting down.
func (d *debouncer) Queue(path string, eventType EventType) bool {
	if d.stopping.Load() {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopping.Load() {
		return false
	}

	if eventType == EventDelete {
		if p, ok := d.pending[path]; ok {
			p.timer.Stop()
			delete(d.pending, path)
		}
		go d.onProcess(path, EventDelete)
		return true
	}

	if p, ok := d.pending[path]; ok {
		if p.timer.Reset(d.delay) {
			// Create takes precedence over a later write
			if eventType == EventCreate {
				p.eventType = EventCreate
			}
			return true
		}
		// Timer already fired; fall through and queue fresh
	}

	timer := time.AfterFunc(d.delay, func() {
		d.fire(path)
	})
	d.pending[path] = &pendingEvent{timer: timer, eventType: eventType}
	return true
}

func (d *debouncer) fire(path string) {
	d.mu.Lock()
	p, ok := d.pending[path]
	if ok {
		delete(d.pending, path)
	}
	d.mu.Unlock()

	if ok {
		d.onProcess(path, p.eventType)
	}
}

// Stop cancels all pending events and rejects new ones
func (d *debouncer) Stop() {
	d.stopping.Store(true)

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, p := range d.pending {
		p.timer.Stop()
	}
	d.pending = make(map[string]*pendingEvent)
}

// PendingCount returns the number of queued events (for testing)
func (d *debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
