package digest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mnemo-app/mnemo/db"
)

func TestSleepCtxCompletes(t *testing.T) {
	start := time.Now()
	if !sleepCtx(context.Background(), 10*time.Millisecond) {
		t.Error("expected sleepCtx to return true")
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Error("sleepCtx returned early")
	}
}

func TestSleepCtxCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if sleepCtx(ctx, time.Minute) {
		t.Error("expected sleepCtx to return false on cancelled context")
	}
}

func TestSleepCtxZeroDuration(t *testing.T) {
	if !sleepCtx(context.Background(), 0) {
		t.Error("expected true for zero duration with live context")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if sleepCtx(ctx, 0) {
		t.Error("expected false for zero duration with dead context")
	}
}

func TestSupervisorSingleInstance(t *testing.T) {
	store := newFakeStore()
	registry := NewRegistry()
	registry.Register(&fakeDigester{name: "tags"})
	coordinator := NewCoordinator(store, newFakeBlobs(), registry, nil, 4)

	cfg := SupervisorConfig{
		StartDelay:  time.Hour, // keep the loop from doing real work
		IdleSleep:   time.Second,
		StaleSweep:  time.Hour,
		BatchSize:   10,
		MaxAttempts: 4,
	}

	s1 := NewSupervisor(cfg, store, registry, coordinator)
	s2 := NewSupervisor(cfg, store, registry, coordinator)

	ctx := context.Background()
	if !s1.Start(ctx) {
		t.Fatal("first supervisor should start")
	}
	defer s1.Stop()

	if s2.Start(ctx) {
		s2.Stop()
		t.Error("second supervisor should refuse to start")
	}
}

func TestHandleReportsDigesterFailure(t *testing.T) {
	store := newFakeStore()
	store.addFile(testFile("a.md"))

	d := &fakeDigester{name: "tags", applies: true, runErr: errors.New("vendor down")}
	registry := NewRegistry()
	registry.Register(d)
	coordinator := NewCoordinator(store, newFakeBlobs(), registry, nil, 4)

	s := NewSupervisor(SupervisorConfig{BatchSize: 1, MaxAttempts: 4}, store, registry, coordinator)

	// A failing digester must count as a failed pass so the loop backs off
	if s.handle(context.Background(), "a.md", false) {
		t.Error("expected handle to report failure when a digester fails")
	}

	d.runErr = nil
	d.outputs = completedOutput("tags", "x")
	if !s.handle(context.Background(), "a.md", false) {
		t.Error("expected handle to report success once digesters recover")
	}
}

func TestStaleSweepReclaimsAbandonedRows(t *testing.T) {
	store := newFakeStore()
	store.addFile(testFile("a.md"))
	store.CreateDigestIfMissing("a.md", "tags")

	inProgress := db.DigestStatusInProgress
	stale := "worker died mid-run"
	store.UpdateDigest("a.md", "tags", db.DigestPatch{Status: &inProgress, Error: &stale})
	store.clock += 10_000 // age the row well past the threshold

	registry := NewRegistry()
	registry.Register(&fakeDigester{name: "tags"})
	coordinator := NewCoordinator(store, newFakeBlobs(), registry, nil, 4)

	cfg := SupervisorConfig{
		StartDelay:     time.Hour, // keep the main loop out of the way
		StaleThreshold: 5 * time.Millisecond,
		StaleSweep:     10 * time.Millisecond,
		BatchSize:      1,
		MaxAttempts:    4,
	}
	s := NewSupervisor(cfg, store, registry, coordinator)
	if !s.Start(context.Background()) {
		t.Fatal("supervisor should start")
	}
	defer s.Stop()

	deadline := time.After(2 * time.Second)
	for {
		rows, err := store.ListDigests("a.md")
		if err != nil || len(rows) != 1 {
			t.Fatalf("expected one row, got %v (%v)", rows, err)
		}
		row := rows[0]
		if row.Status == db.DigestStatusTodo {
			if row.Error != nil {
				t.Errorf("reclaimed row should carry no error, got %q", *row.Error)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("row was not reclaimed, status %s", row.Status)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSupervisorNotifyDropsWhenFull(t *testing.T) {
	store := newFakeStore()
	registry := NewRegistry()
	coordinator := NewCoordinator(store, newFakeBlobs(), registry, nil, 4)

	s := NewSupervisor(SupervisorConfig{BatchSize: 1}, store, registry, coordinator)

	// Never started, so nothing drains the queue. Filling past capacity
	// must not block.
	for i := 0; i < 1100; i++ {
		s.Notify("file.md", false)
	}
}
