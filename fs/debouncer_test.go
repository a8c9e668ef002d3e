package fs

import (
	"sync"
	"testing"
	"time"
)

func TestDebouncerCoalescesRapidWrites(t *testing.T) {
	var mu sync.Mutex
	var processed []string

	d := newDebouncer(50*time.Millisecond, func(path string, eventType EventType) {
		mu.Lock()
		processed = append(processed, path)
		mu.Unlock()
	})
	defer d.Stop()

	for i := 0; i < 5; i++ {
		d.Queue("note.md", EventWrite)
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(processed) != 1 {
		t.Errorf("expected 1 processed event, got %d", len(processed))
	}
	if len(processed) > 0 && processed[0] != "note.md" {
		t.Errorf("expected note.md, got %s", processed[0])
	}
}

func TestDebouncerDeleteIsImmediate(t *testing.T) {
	done := make(chan EventType, 1)

	d := newDebouncer(100*time.Millisecond, func(path string, eventType EventType) {
		done <- eventType
	})
	defer d.Stop()

	d.Queue("note.md", EventDelete)

	select {
	case got := <-done:
		if got != EventDelete {
			t.Errorf("expected EventDelete, got %v", got)
		}
	case <-time.After(50 * time.Millisecond):
		t.Error("delete was not processed immediately")
	}
}

func TestDebouncerDeleteCancelsPending(t *testing.T) {
	var mu sync.Mutex
	var processed []EventType

	d := newDebouncer(100*time.Millisecond, func(path string, eventType EventType) {
		mu.Lock()
		processed = append(processed, eventType)
		mu.Unlock()
	})
	defer d.Stop()

	d.Queue("note.md", EventWrite)
	d.Queue("note.md", EventDelete)

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(processed) != 1 || processed[0] != EventDelete {
		t.Errorf("expected only the delete to run, got %v", processed)
	}
}

func TestDebouncerCreateOverridesWrite(t *testing.T) {
	var mu sync.Mutex
	var last EventType

	d := newDebouncer(50*time.Millisecond, func(path string, eventType EventType) {
		mu.Lock()
		last = eventType
		mu.Unlock()
	})
	defer d.Stop()

	d.Queue("note.md", EventWrite)
	d.Queue("note.md", EventCreate)

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if last != EventCreate {
		t.Errorf("expected EventCreate to win, got %v", last)
	}
}

func TestDebouncerIndependentPaths(t *testing.T) {
	var mu sync.Mutex
	processed := make(map[string]bool)

	d := newDebouncer(50*time.Millisecond, func(path string, eventType EventType) {
		mu.Lock()
		processed[path] = true
		mu.Unlock()
	})
	defer d.Stop()

	d.Queue("a.md", EventWrite)
	d.Queue("b.md", EventWrite)
	d.Queue("c.md", EventWrite)

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, path := range []string{"a.md", "b.md", "c.md"} {
		if !processed[path] {
			t.Errorf("expected %s to be processed", path)
		}
	}
}

func TestDebouncerQueueAfterStop(t *testing.T) {
	d := newDebouncer(50*time.Millisecond, func(path string, eventType EventType) {
		t.Error("should not run after Stop")
	})

	d.Queue("note.md", EventWrite)
	d.Stop()

	if d.Queue("note.md", EventWrite) {
		t.Error("expected Queue to return false after Stop")
	}
	if d.Queue("note.md", EventDelete) {
		t.Error("expected delete Queue to return false after Stop")
	}

	time.Sleep(100 * time.Millisecond)
}

func TestDebouncerPendingCount(t *testing.T) {
	d := newDebouncer(100*time.Millisecond, func(string, EventType) {})
	defer d.Stop()

	if d.PendingCount() != 0 {
		t.Error("expected 0 pending initially")
	}

	d.Queue("a.md", EventWrite)
	d.Queue("b.md", EventWrite)
	if d.PendingCount() != 2 {
		t.Errorf("expected 2 pending, got %d", d.PendingCount())
	}

	time.Sleep(150 * time.Millisecond)
	if d.PendingCount() != 0 {
		t.Errorf("expected 0 pending after firing, got %d", d.PendingCount())
	}
}
