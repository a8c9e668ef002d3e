package fs

import (
	"testing"
	"time"
)

func TestMoveDetectorMatchesRenameToCreate(t *testing.T) {
	m := newMoveDetector(500*time.Millisecond, "")

	m.TrackRename("inbox/report.pdf", 0)

	oldPath, isMove := m.CheckMove("archive/report.pdf")
	if !isMove {
		t.Fatal("expected create to match recent rename")
	}
	if oldPath != "inbox/report.pdf" {
		t.Errorf("expected old path inbox/report.pdf, got %s", oldPath)
	}

	// Match is consumed
	if _, again := m.CheckMove("archive/report.pdf"); again {
		t.Error("expected rename to be consumed after first match")
	}
}

func TestMoveDetectorRequiresSameBaseName(t *testing.T) {
	m := newMoveDetector(500*time.Millisecond, "")

	m.TrackRename("inbox/report.pdf", 0)

	if _, isMove := m.CheckMove("archive/other.pdf"); isMove {
		t.Error("expected no match for a different filename")
	}
}

func TestMoveDetectorExpiry(t *testing.T) {
	m := newMoveDetector(20*time.Millisecond, "")

	m.TrackRename("inbox/report.pdf", 0)
	time.Sleep(50 * time.Millisecond)

	if _, isMove := m.CheckMove("archive/report.pdf"); isMove {
		t.Error("expected expired rename to be ignored")
	}
	if m.PendingCount() != 0 {
		t.Errorf("expected expired entries cleaned up, got %d", m.PendingCount())
	}
}

func TestMoveDetectorPrefersMostRecent(t *testing.T) {
	m := newMoveDetector(500*time.Millisecond, "")

	m.TrackRename("a/report.pdf", 0)
	time.Sleep(5 * time.Millisecond)
	m.TrackRename("b/report.pdf", 0)

	oldPath, isMove := m.CheckMove("c/report.pdf")
	if !isMove {
		t.Fatal("expected a match")
	}
	if oldPath != "b/report.pdf" {
		t.Errorf("expected most recent rename b/report.pdf, got %s", oldPath)
	}
}
