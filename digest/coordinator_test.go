package digest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/mnemo-app/mnemo/db"
)

// fakeStore is an in-memory Store with the same patch semantics as the
// db package
type fakeStore struct {
	mu          sync.Mutex
	files       map[string]*db.FileRecord
	digests     map[string]map[string]*db.Digest
	locks       map[string]string
	screenshots map[string]*string
	clock       int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		files:       make(map[string]*db.FileRecord),
		digests:     make(map[string]map[string]*db.Digest),
		locks:       make(map[string]string),
		screenshots: make(map[string]*string),
		clock:       1000,
	}
}

func (s *fakeStore) tick() int64 {
	s.clock++
	return s.clock
}

func (s *fakeStore) addFile(f *db.FileRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[f.Path] = f
}

func (s *fakeStore) row(path, digester string) *db.Digest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rows, ok := s.digests[path]; ok {
		return rows[digester]
	}
	return nil
}

func (s *fakeStore) GetFile(path string) (*db.FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.files[path], nil
}

func (s *fakeStore) TouchFileScanned(path string) error { return nil }

func (s *fakeStore) SetFileScreenshot(path string, blobName *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.screenshots[path] = blobName
	if f, ok := s.files[path]; ok {
		f.ScreenshotSqlar = blobName
	}
	return nil
}

func (s *fakeStore) ListDigests(path string) ([]*db.Digest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*db.Digest
	for _, d := range s.digests[path] {
		copied := *d
		result = append(result, &copied)
	}
	return result, nil
}

func (s *fakeStore) CreateDigestIfMissing(path, digester string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.digests[path] == nil {
		s.digests[path] = make(map[string]*db.Digest)
	}
	if _, exists := s.digests[path][digester]; exists {
		return false, nil
	}
	now := s.tick()
	s.digests[path][digester] = &db.Digest{
		ID:        path + "/" + digester,
		FilePath:  path,
		Digester:  digester,
		Status:    db.DigestStatusTodo,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return true, nil
}

func (s *fakeStore) UpdateDigest(path, digester string, patch db.DigestPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.digests[path][digester]
	if d == nil {
		return errors.New("no such digest row")
	}
	d.UpdatedAt = s.tick()
	if patch.Status != nil {
		d.Status = *patch.Status
	}
	if patch.Content != nil {
		d.Content = patch.Content
	} else if patch.ClearContent {
		d.Content = nil
	}
	if patch.SqlarName != nil {
		d.SqlarName = patch.SqlarName
	} else if patch.ClearSqlar {
		d.SqlarName = nil
	}
	if patch.Error != nil {
		d.Error = patch.Error
	} else if patch.ClearError {
		d.Error = nil
	}
	if patch.Attempts != nil {
		d.Attempts = *patch.Attempts
	}
	return nil
}

func (s *fakeStore) DemoteOrphanDigests(path string, knownNames []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	known := make(map[string]bool, len(knownNames))
	for _, n := range knownNames {
		known[n] = true
	}
	reason := "Digester no longer registered"
	var n int64
	for _, d := range s.digests[path] {
		if known[d.Digester] {
			continue
		}
		if d.Status != db.DigestStatusTodo && d.Status != db.DigestStatusFailed {
			continue
		}
		d.Status = db.DigestStatusSkipped
		d.Error = &reason
		d.Attempts = 0
		d.UpdatedAt = s.tick()
		n++
	}
	return n, nil
}

func (s *fakeStore) TryLock(path, owner string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if holder, held := s.locks[path]; held && holder != owner {
		return false, nil
	}
	s.locks[path] = owner
	return true, nil
}

func (s *fakeStore) Unlock(path, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks[path] == owner {
		delete(s.locks, path)
	}
	return nil
}

func (s *fakeStore) FilesNeedingDigest(limit int, outputs, excludedPrefixes []string, maxAttempts int) ([]string, error) {
	return nil, nil
}

func (s *fakeStore) ResetStaleInProgress(thresholdMs int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.clock - thresholdMs
	var n int64
	for _, rows := range s.digests {
		for _, d := range rows {
			if d.Status == db.DigestStatusInProgress && d.UpdatedAt < cutoff {
				d.Status = db.DigestStatusTodo
				d.Error = nil
				d.UpdatedAt = s.tick()
				n++
			}
		}
	}
	return n, nil
}

func (s *fakeStore) ReleaseStaleLocks(thresholdMs int64) (int64, error) { return 0, nil }

// fakeBlobs records stored blobs and deleted prefixes
type fakeBlobs struct {
	mu      sync.Mutex
	stored  map[string][]byte
	deleted []string
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{stored: make(map[string][]byte)}
}

func (b *fakeBlobs) Store(name string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stored[name] = data
	return nil
}

func (b *fakeBlobs) Get(name string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stored[name], nil
}

func (b *fakeBlobs) DeletePrefix(prefix string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, prefix)
	for name := range b.stored {
		if strings.HasPrefix(name, prefix) {
			delete(b.stored, name)
		}
	}
	return nil
}

// fakeNotifier records preview notifications
type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *fakeNotifier) NotifyPreviewUpdated(path, previewType string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, path+":"+previewType)
}

// fakeDigester is a scriptable digester
type fakeDigester struct {
	name       string
	applies    bool
	appliesErr error
	outputs    []Output
	runErr     error
	runs       int
	onRun      func()
}

func (d *fakeDigester) Name() string        { return d.name }
func (d *fakeDigester) Label() string       { return d.name }
func (d *fakeDigester) Description() string { return "test digester" }
func (d *fakeDigester) Outputs() []string   { return nil }

func (d *fakeDigester) Applies(context.Context, *db.FileRecord, []*db.Digest) (bool, error) {
	return d.applies, d.appliesErr
}

func (d *fakeDigester) Run(context.Context, *db.FileRecord, []*db.Digest) ([]Output, error) {
	d.runs++
	if d.onRun != nil {
		d.onRun()
	}
	return d.outputs, d.runErr
}

func testFile(path string) *db.FileRecord {
	return &db.FileRecord{
		Path:       path,
		Name:       path,
		ModifiedAt: 500,
		CreatedAt:  500,
	}
}

func completedOutput(name, content string) []Output {
	status := StatusCompleted
	return []Output{{Digester: name, Status: status, Content: &content}}
}

func TestProcessFileCompletesOutput(t *testing.T) {
	store := newFakeStore()
	store.addFile(testFile("a.md"))

	d := &fakeDigester{name: "tags", applies: true, outputs: completedOutput("tags", `{"tags":["x"]}`)}
	registry := NewRegistry()
	registry.Register(d)

	c := NewCoordinator(store, newFakeBlobs(), registry, nil, 4)
	result, err := c.ProcessFile(context.Background(), "a.md", false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Processed != 1 {
		t.Errorf("expected 1 processed, got %+v", result)
	}

	row := store.row("a.md", "tags")
	if row == nil || row.Status != db.DigestStatusCompleted {
		t.Fatalf("expected completed row, got %+v", row)
	}
	if row.Attempts != 0 {
		t.Errorf("completed row should have attempts 0, got %d", row.Attempts)
	}
	if row.Content == nil || *row.Content != `{"tags":["x"]}` {
		t.Errorf("unexpected content %v", row.Content)
	}
	if row.Error != nil {
		t.Errorf("completed row should have no error, got %q", *row.Error)
	}
}

func TestProcessFileIdempotent(t *testing.T) {
	store := newFakeStore()
	store.addFile(testFile("a.md"))

	d := &fakeDigester{name: "tags", applies: true, outputs: completedOutput("tags", "x")}
	registry := NewRegistry()
	registry.Register(d)

	c := NewCoordinator(store, newFakeBlobs(), registry, nil, 4)
	c.ProcessFile(context.Background(), "a.md", false)
	c.ProcessFile(context.Background(), "a.md", false)

	if d.runs != 1 {
		t.Errorf("expected digester to run once, ran %d times", d.runs)
	}
}

func TestProcessFileNotApplicable(t *testing.T) {
	store := newFakeStore()
	store.addFile(testFile("a.bin"))

	d := &fakeDigester{name: "tags", applies: false}
	registry := NewRegistry()
	registry.Register(d)

	c := NewCoordinator(store, newFakeBlobs(), registry, nil, 4)
	result, _ := c.ProcessFile(context.Background(), "a.bin", false)
	if result.Skipped != 1 {
		t.Errorf("expected 1 skipped, got %+v", result)
	}

	row := store.row("a.bin", "tags")
	if row.Status != db.DigestStatusSkipped {
		t.Errorf("expected skipped, got %s", row.Status)
	}
	if row.Error == nil || *row.Error != SkipNotApplicable {
		t.Errorf("expected %q reason, got %v", SkipNotApplicable, row.Error)
	}
	if d.runs != 0 {
		t.Errorf("digester should not run when not applicable, ran %d", d.runs)
	}
}

func TestProcessFileEmptyRunSkips(t *testing.T) {
	store := newFakeStore()
	store.addFile(testFile("a.md"))

	d := &fakeDigester{name: "tags", applies: true, outputs: nil}
	registry := NewRegistry()
	registry.Register(d)

	c := NewCoordinator(store, newFakeBlobs(), registry, nil, 4)
	c.ProcessFile(context.Background(), "a.md", false)

	row := store.row("a.md", "tags")
	if row.Status != db.DigestStatusSkipped {
		t.Errorf("expected skipped for empty output, got %s", row.Status)
	}
	if row.Error == nil || *row.Error != SkipOutputNotProduced {
		t.Errorf("expected %q reason, got %v", SkipOutputNotProduced, row.Error)
	}
	if row.Attempts != 0 {
		t.Errorf("skipped row should have attempts 0, got %d", row.Attempts)
	}
}

func TestProcessFileRetriesUntilCap(t *testing.T) {
	store := newFakeStore()
	store.addFile(testFile("a.md"))

	d := &fakeDigester{name: "tags", applies: true, runErr: errors.New("vendor down")}
	registry := NewRegistry()
	registry.Register(d)

	maxAttempts := 3
	c := NewCoordinator(store, newFakeBlobs(), registry, nil, maxAttempts)

	for i := 0; i < maxAttempts; i++ {
		c.ProcessFile(context.Background(), "a.md", false)
	}

	row := store.row("a.md", "tags")
	if row.Status != db.DigestStatusFailed {
		t.Fatalf("expected failed, got %s", row.Status)
	}
	if row.Attempts != maxAttempts {
		t.Errorf("expected attempts %d, got %d", maxAttempts, row.Attempts)
	}
	if row.Error == nil || !strings.HasSuffix(*row.Error, MaxAttemptsSuffix) {
		t.Errorf("expected terminal error suffix, got %v", row.Error)
	}

	// Exhausted rows are not retried
	runsBefore := d.runs
	c.ProcessFile(context.Background(), "a.md", false)
	if d.runs != runsBefore {
		t.Errorf("expected no further runs after cap, got %d", d.runs-runsBefore)
	}
}

func TestProcessFileLockedByOtherWorker(t *testing.T) {
	store := newFakeStore()
	store.addFile(testFile("a.md"))
	store.locks["a.md"] = "someone-else"

	d := &fakeDigester{name: "tags", applies: true, outputs: completedOutput("tags", "x")}
	registry := NewRegistry()
	registry.Register(d)

	c := NewCoordinator(store, newFakeBlobs(), registry, nil, 4)
	result, err := c.ProcessFile(context.Background(), "a.md", false)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Locked {
		t.Error("expected Locked result")
	}
	if d.runs != 0 {
		t.Errorf("digester should not run on a locked file, ran %d", d.runs)
	}
}

func TestProcessFileReleasesLock(t *testing.T) {
	store := newFakeStore()
	store.addFile(testFile("a.md"))

	d := &fakeDigester{name: "tags", applies: true, outputs: completedOutput("tags", "x")}
	registry := NewRegistry()
	registry.Register(d)

	c := NewCoordinator(store, newFakeBlobs(), registry, nil, 4)
	c.ProcessFile(context.Background(), "a.md", false)

	if _, held := store.locks["a.md"]; held {
		t.Error("expected lock to be released after processing")
	}
}

func TestProcessFileResetClearsState(t *testing.T) {
	store := newFakeStore()
	store.addFile(testFile("a.md"))
	blobs := newFakeBlobs()

	d := &fakeDigester{name: "tags", applies: true, outputs: completedOutput("tags", "first")}
	registry := NewRegistry()
	registry.Register(d)

	c := NewCoordinator(store, blobs, registry, nil, 4)
	c.ProcessFile(context.Background(), "a.md", false)

	d.outputs = completedOutput("tags", "second")
	c.ProcessFile(context.Background(), "a.md", true)

	if d.runs != 2 {
		t.Errorf("expected rerun after reset, ran %d times", d.runs)
	}
	row := store.row("a.md", "tags")
	if row.Content == nil || *row.Content != "second" {
		t.Errorf("expected fresh content after reset, got %v", row.Content)
	}

	prefix := db.GeneratePathHash("a.md") + "/"
	found := false
	for _, p := range blobs.deleted {
		if p == prefix {
			found = true
		}
	}
	if !found {
		t.Error("expected blob prefix to be deleted on reset")
	}
	if sc, ok := store.screenshots["a.md"]; !ok || sc != nil {
		t.Error("expected screenshot pointer cleared on reset")
	}
}

func TestScreenshotOutputSetsPointer(t *testing.T) {
	store := newFakeStore()
	store.addFile(testFile("doc.pdf"))
	blobs := newFakeBlobs()
	notifier := &fakeNotifier{}

	blobName := "screenshot.png"
	d := &fakeDigester{name: "doc-to-screenshot", applies: true, outputs: []Output{{
		Digester:   "doc-to-screenshot",
		Status:     StatusCompleted,
		BlobName:   &blobName,
		BlobData:   []byte{1, 2, 3},
		Screenshot: true,
	}}}
	registry := NewRegistry()
	registry.Register(d)

	c := NewCoordinator(store, blobs, registry, notifier, 4)
	c.ProcessFile(context.Background(), "doc.pdf", false)

	wantKey := db.GeneratePathHash("doc.pdf") + "/doc-to-screenshot/screenshot.png"
	if _, ok := blobs.stored[wantKey]; !ok {
		t.Errorf("expected blob stored at %s", wantKey)
	}

	row := store.row("doc.pdf", "doc-to-screenshot")
	if row.SqlarName == nil || *row.SqlarName != wantKey {
		t.Errorf("expected sqlar_name %s, got %v", wantKey, row.SqlarName)
	}

	if sc := store.screenshots["doc.pdf"]; sc == nil || *sc != wantKey {
		t.Errorf("expected screenshot pointer %s, got %v", wantKey, sc)
	}
	if len(notifier.calls) != 1 || notifier.calls[0] != "doc.pdf:screenshot" {
		t.Errorf("expected preview notification, got %v", notifier.calls)
	}
}

func TestStaleSearchRowReIndexed(t *testing.T) {
	store := newFakeStore()

	d := &fakeDigester{name: "search-keyword", applies: true, outputs: completedOutput("search-keyword", "meta")}
	registry := NewRegistry()
	registry.Register(d)

	c := NewCoordinator(store, newFakeBlobs(), registry, nil, 4)

	file := testFile("a.md")
	store.addFile(file)
	c.ProcessFile(context.Background(), "a.md", false)
	if d.runs != 1 {
		t.Fatalf("expected initial run, got %d", d.runs)
	}

	// File content changes after the index row went terminal
	file.ModifiedAt = store.clock + 100
	store.clock += 200

	c.ProcessFile(context.Background(), "a.md", false)
	if d.runs != 2 {
		t.Errorf("expected re-index after content change, ran %d times", d.runs)
	}

	row := store.row("a.md", "search-keyword")
	if row.Status != db.DigestStatusCompleted {
		t.Errorf("expected completed after re-index, got %s", row.Status)
	}
}

func TestRetryClearsPreviousError(t *testing.T) {
	store := newFakeStore()
	store.addFile(testFile("a.md"))

	d := &fakeDigester{name: "tags", applies: true, runErr: errors.New("vendor down")}
	registry := NewRegistry()
	registry.Register(d)

	c := NewCoordinator(store, newFakeBlobs(), registry, nil, 4)
	c.ProcessFile(context.Background(), "a.md", false)

	row := store.row("a.md", "tags")
	if row.Error == nil {
		t.Fatal("expected error after failed run")
	}

	// The old failure must not linger on the row while the retry runs
	d.runErr = nil
	d.outputs = completedOutput("tags", "x")
	d.onRun = func() {
		mid := store.row("a.md", "tags")
		if mid.Status != db.DigestStatusInProgress {
			t.Errorf("expected in-progress during run, got %s", mid.Status)
		}
		if mid.Error != nil {
			t.Errorf("expected error cleared on retry, got %q", *mid.Error)
		}
	}
	c.ProcessFile(context.Background(), "a.md", false)

	if d.runs != 2 {
		t.Fatalf("expected a retry, ran %d times", d.runs)
	}
}

func TestResetDigestClearsSingleRow(t *testing.T) {
	store := newFakeStore()
	store.addFile(testFile("doc.pdf"))
	blobs := newFakeBlobs()

	shotName := "screenshot.png"
	shot := &fakeDigester{name: "doc-to-screenshot", applies: true, outputs: []Output{{
		Digester:   "doc-to-screenshot",
		Status:     StatusCompleted,
		BlobName:   &shotName,
		BlobData:   []byte{1, 2},
		Screenshot: true,
	}}}
	md := &fakeDigester{name: "doc-to-markdown", applies: true, outputs: completedOutput("doc-to-markdown", "# doc")}
	registry := NewRegistry()
	registry.Register(md)
	registry.Register(shot)

	c := NewCoordinator(store, blobs, registry, nil, 4)
	c.ProcessFile(context.Background(), "doc.pdf", false)

	if err := c.ResetDigest("doc.pdf", "doc-to-screenshot"); err != nil {
		t.Fatal(err)
	}

	row := store.row("doc.pdf", "doc-to-screenshot")
	if row.Status != db.DigestStatusTodo {
		t.Errorf("expected todo after reset, got %s", row.Status)
	}
	if row.SqlarName != nil || row.Error != nil || row.Attempts != 0 {
		t.Errorf("expected a clean row, got %+v", row)
	}

	blobKey := db.GeneratePathHash("doc.pdf") + "/doc-to-screenshot/screenshot.png"
	if _, ok := blobs.stored[blobKey]; ok {
		t.Error("expected the screenshot blob deleted")
	}
	if sc := store.screenshots["doc.pdf"]; sc != nil {
		t.Errorf("expected screenshot pointer cleared, got %q", *sc)
	}

	// The sibling row keeps its output
	other := store.row("doc.pdf", "doc-to-markdown")
	if other.Status != db.DigestStatusCompleted || other.Content == nil {
		t.Errorf("expected doc-to-markdown untouched, got %+v", other)
	}
}

func TestProcessFileMissingFile(t *testing.T) {
	store := newFakeStore()

	d := &fakeDigester{name: "tags", applies: true}
	registry := NewRegistry()
	registry.Register(d)

	c := NewCoordinator(store, newFakeBlobs(), registry, nil, 4)
	result, err := c.ProcessFile(context.Background(), "gone.md", false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Processed != 0 || result.Skipped != 0 || result.Failed != 0 {
		t.Errorf("expected empty result for unknown file, got %+v", result)
	}
}
