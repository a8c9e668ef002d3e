package fs

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mnemo-app/mnemo/db"
	"github.com/mnemo-app/mnemo/utils"
	"github.com/mnemo-app/mnemo/vendors"
)

// Watcher observes the data root with fsnotify and keeps the file catalog
// in sync. Events are debounced, renames are correlated into moves, and
// every resulting catalog change is fanned out to subscribed handlers.
type Watcher struct {
	dataRoot string
	filter   *PathFilter

	fsw       *fsnotify.Watcher
	debouncer *debouncer
	moves     *moveDetector

	mu       sync.Mutex
	handlers []FileChangeHandler

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a watcher over dataRoot. Paths matching the filter
// never reach the catalog.
func NewWatcher(dataRoot string, filter *PathFilter) *Watcher {
	w := &Watcher{
		dataRoot: dataRoot,
		filter:   filter,
		moves:    newMoveDetector(DefaultMoveTTL, dataRoot),
	}
	w.debouncer = newDebouncer(DefaultDebounceDelay, w.processEvent)
	return w
}

// Subscribe registers a handler for catalog change events
func (w *Watcher) Subscribe(handler FileChangeHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, handler)
}

func (w *Watcher) emit(event FileChangeEvent) {
	w.mu.Lock()
	handlers := make([]FileChangeHandler, len(w.handlers))
	copy(handlers, w.handlers)
	w.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
}

// Start begins watching. Directories are watched recursively; new
// directories are added to the watch as they appear.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw

	if err := w.watchRecursive(w.dataRoot); err != nil {
		fsw.Close()
		return err
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.eventLoop(ctx)

	logger.Info().Str("root", w.dataRoot).Msg("filesystem watcher started")
	return nil
}

// Stop shuts the watcher down and drains pending events
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.debouncer.Stop()
	if w.fsw != nil {
		w.fsw.Close()
	}
	w.wg.Wait()
	logger.Info().Msg("filesystem watcher stopped")
}

// watchRecursive adds a watch on dir and every non-excluded subdirectory
func (w *Watcher) watchRecursive(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("walk error, skipping")
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		rel := w.relPath(path)
		if rel != "" && w.filter.IsExcluded(rel) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("failed to watch directory")
		}
		return nil
	})
}

func (w *Watcher) eventLoop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Error().Err(err).Msg("watcher error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	rel := w.relPath(event.Name)
	if rel == "" || w.filter.IsExcluded(rel) {
		return
	}

	switch {
	case event.Op&fsnotify.Create != 0:
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watchRecursive(event.Name); err != nil {
				logger.Warn().Err(err).Str("path", rel).Msg("failed to watch new directory")
			}
			return
		}
		w.debouncer.Queue(rel, EventCreate)

	case event.Op&fsnotify.Write != 0:
		w.debouncer.Queue(rel, EventWrite)

	case event.Op&fsnotify.Remove != 0:
		w.debouncer.Queue(rel, EventDelete)

	case event.Op&fsnotify.Rename != 0:
		// Rename reports the old path; record it so the paired create
		// can be recognized as a move
		var size int64
		if record, err := db.GetFileByPath(rel); err == nil && record != nil && record.Size != nil {
			size = *record.Size
		}
		w.moves.TrackRename(rel, size)
		w.debouncer.Queue(rel, EventDelete)
	}
}

// processEvent runs after the debounce delay resolves an event
func (w *Watcher) processEvent(path string, eventType EventType) {
	switch eventType {
	case EventDelete:
		// A rename emits a delayed delete for the old path; skip it if
		// the file is still on disk (the move already re-homed the row)
		if _, err := os.Stat(filepath.Join(w.dataRoot, path)); err == nil {
			return
		}
		w.handleDelete(path)

	case EventCreate:
		if oldPath, isMove := w.moves.CheckMove(path); isMove {
			w.handleMove(oldPath, path)
			return
		}
		w.syncFile(path, "fsnotify")

	case EventWrite:
		w.syncFile(path, "fsnotify")
	}
}

// syncFile refreshes the catalog row for a file on disk and emits a
// change event when the content is new or different
func (w *Watcher) syncFile(path, trigger string) {
	fullPath := filepath.Join(w.dataRoot, path)
	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		logger.Error().Err(err).Str("path", path).Msg("failed to stat file")
		return
	}
	if info.IsDir() {
		return
	}

	existing, err := db.GetFileByPath(path)
	if err != nil {
		logger.Error().Err(err).Str("path", path).Msg("failed to load file record")
		return
	}

	meta, err := ComputeMetadata(w.dataRoot, path)
	if err != nil {
		logger.Error().Err(err).Str("path", path).Msg("failed to compute metadata")
		return
	}

	isNew := existing == nil
	contentChanged := isNew || existing.Hash == nil || *existing.Hash != meta.Hash
	if !contentChanged {
		return
	}

	record := &db.FileRecord{
		Path:       path,
		Name:       filepath.Base(path),
		IsFolder:   false,
		Size:       &meta.Size,
		Hash:       &meta.Hash,
		ModifiedAt: info.ModTime().UnixMilli(),
		CreatedAt:  db.NowMs(),
	}
	if mime := utils.DetectMimeType(path); mime != "" {
		record.MimeType = &mime
	}
	if !isNew {
		record.CreatedAt = existing.CreatedAt
	}
	if err := db.UpsertFile(record); err != nil {
		logger.Error().Err(err).Str("path", path).Msg("failed to upsert file")
		return
	}
	if meta.TextPreview != nil {
		if err := db.UpdateFileField(path, "text_preview", *meta.TextPreview); err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("failed to store text preview")
		}
	}

	logger.Debug().Str("path", path).Bool("new", isNew).Msg("file synced")
	w.emit(FileChangeEvent{
		FilePath:       path,
		IsNew:          isNew,
		ContentChanged: contentChanged,
		Trigger:        trigger,
	})
}

// handleMove re-homes the catalog row and its dependent rows so digests
// and blobs survive the rename
func (w *Watcher) handleMove(oldPath, newPath string) {
	if err := db.MoveFile(oldPath, newPath, filepath.Base(newPath)); err != nil {
		logger.Error().Err(err).Str("from", oldPath).Str("to", newPath).Msg("failed to move file row")
		// Fall back to treating the create as a fresh file
		w.syncFile(newPath, "fsnotify")
		return
	}
	logger.Info().Str("from", oldPath).Str("to", newPath).Msg("file moved")
	w.emit(FileChangeEvent{
		FilePath: newPath,
		Trigger:  "fsnotify",
	})
}

// handleDelete cascades the catalog delete and clears remote indexes
func (w *Watcher) handleDelete(path string) {
	doc, err := db.GetMeiliDocumentByPath(path)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("failed to load keyword document")
	}

	if err := db.DeleteFileWithCascade(path); err != nil {
		logger.Error().Err(err).Str("path", path).Msg("failed to delete file records")
		return
	}

	// Remote index cleanup is best effort; rows are already gone locally
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if doc != nil {
		if meili := vendors.GetMeili(); meili != nil {
			if err := meili.DeleteDocument(doc.DocumentID); err != nil {
				logger.Warn().Err(err).Str("path", path).Msg("failed to delete keyword index entry")
			}
		}
	}
	if qdrant := vendors.GetQdrant(); qdrant != nil {
		if err := qdrant.DeleteByPath(ctx, path); err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("failed to delete semantic index entries")
		}
	}

	logger.Info().Str("path", path).Msg("file removed from catalog")
}

// relPath converts an absolute event path to the slash-separated path
// used as the catalog key. Returns "" for paths outside the root.
func (w *Watcher) relPath(fullPath string) string {
	rel, err := filepath.Rel(w.dataRoot, fullPath)
	if err != nil || rel == "." || filepath.IsAbs(rel) {
		return ""
	}
	slashed := filepath.ToSlash(rel)
	if slashed == ".." || len(slashed) > 2 && slashed[:3] == "../" {
		return ""
	}
	return slashed
}
