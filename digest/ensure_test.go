package digest

import (
	"testing"

	"github.com/mnemo-app/mnemo/db"
)

func TestEnsureDigestRowsCreatesMissing(t *testing.T) {
	store := newFakeStore()
	registry := NewRegistry()
	registry.Register(&fakeDigester{name: "tags"})
	registry.Register(&fakeDigester{name: "slug"})

	added, demoted, err := EnsureDigestRows(store, registry, "a.md")
	if err != nil {
		t.Fatal(err)
	}
	if added != 2 || demoted != 0 {
		t.Errorf("expected 2 added, got added=%d demoted=%d", added, demoted)
	}

	for _, name := range []string{"tags", "slug"} {
		row := store.row("a.md", name)
		if row == nil {
			t.Fatalf("expected row for %s", name)
		}
		if row.Status != db.DigestStatusTodo {
			t.Errorf("new row %s should be todo, got %s", name, row.Status)
		}
		if row.Attempts != 0 {
			t.Errorf("new row %s should have 0 attempts, got %d", name, row.Attempts)
		}
	}
}

func TestEnsureDigestRowsIsIdempotent(t *testing.T) {
	store := newFakeStore()
	registry := NewRegistry()
	registry.Register(&fakeDigester{name: "tags"})

	EnsureDigestRows(store, registry, "a.md")
	added, _, err := EnsureDigestRows(store, registry, "a.md")
	if err != nil {
		t.Fatal(err)
	}
	if added != 0 {
		t.Errorf("second call should add nothing, added %d", added)
	}
}

func TestEnsureDemotesOnlyNonTerminalOrphans(t *testing.T) {
	store := newFakeStore()
	registry := NewRegistry()
	registry.Register(&fakeDigester{name: "tags"})

	// Rows left behind by digesters no longer registered
	store.CreateDigestIfMissing("a.md", "doc-to-screenshot")
	store.CreateDigestIfMissing("a.md", "image-ocr")
	completedStatus := db.DigestStatusCompleted
	content := "extracted text"
	store.UpdateDigest("a.md", "image-ocr", db.DigestPatch{Status: &completedStatus, Content: &content})

	_, demoted, err := EnsureDigestRows(store, registry, "a.md")
	if err != nil {
		t.Fatal(err)
	}
	if demoted != 1 {
		t.Errorf("expected 1 demoted row, got %d", demoted)
	}

	if row := store.row("a.md", "doc-to-screenshot"); row.Status != db.DigestStatusSkipped {
		t.Errorf("todo orphan should be demoted, got %s", row.Status)
	}
	row := store.row("a.md", "image-ocr")
	if row.Status != db.DigestStatusCompleted {
		t.Errorf("completed orphan should keep its status, got %s", row.Status)
	}
	if row.Content == nil || *row.Content != "extracted text" {
		t.Errorf("completed orphan should keep its content, got %v", row.Content)
	}
}

func TestSyncAllFiles(t *testing.T) {
	store := newFakeStore()
	registry := NewRegistry()
	registry.Register(&fakeDigester{name: "tags"})

	listPaths := func() ([]string, error) {
		return []string{"a.md", "b.md"}, nil
	}
	if err := SyncAllFiles(store, registry, listPaths); err != nil {
		t.Fatal(err)
	}

	if store.row("a.md", "tags") == nil || store.row("b.md", "tags") == nil {
		t.Error("expected rows for both files")
	}
}
