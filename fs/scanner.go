package fs

import (
	"os"
	"path/filepath"

	"github.com/mnemo-app/mnemo/db"
)

// Scan walks the data root once and reconciles it with the catalog:
// files on disk are synced (emitting change events for new or modified
// content), folders get catalog rows, and catalog entries whose files
// are gone are cascade deleted. Run at startup to catch changes that
// happened while the watcher was down.
func (w *Watcher) Scan() error {
	seen := make(map[string]bool)

	err := filepath.Walk(w.dataRoot, func(fullPath string, info os.FileInfo, err error) error {
		if err != nil {
			logger.Warn().Err(err).Str("path", fullPath).Msg("scan walk error, skipping")
			return nil
		}

		rel := w.relPath(fullPath)
		if rel == "" {
			return nil
		}
		if w.filter.IsExcluded(rel) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.IsDir() {
			w.syncFolder(rel, info)
			return nil
		}

		seen[rel] = true
		w.syncFile(rel, "scan")
		return nil
	})
	if err != nil {
		return err
	}

	// Remove catalog entries for files deleted while we were not looking
	paths, err := w.catalogPaths()
	if err != nil {
		return err
	}
	removed := 0
	for _, path := range paths {
		if seen[path] {
			continue
		}
		w.handleDelete(path)
		removed++
	}

	logger.Info().Int("files", len(seen)).Int("removed", removed).Msg("catalog scan completed")
	return nil
}

// syncFolder ensures a catalog row exists for a directory
func (w *Watcher) syncFolder(path string, info os.FileInfo) {
	existing, err := db.GetFileByPath(path)
	if err != nil {
		logger.Error().Err(err).Str("path", path).Msg("failed to load folder record")
		return
	}
	if existing != nil {
		return
	}

	record := &db.FileRecord{
		Path:       path,
		Name:       filepath.Base(path),
		IsFolder:   true,
		ModifiedAt: info.ModTime().UnixMilli(),
		CreatedAt:  db.NowMs(),
	}
	if err := db.UpsertFile(record); err != nil {
		logger.Error().Err(err).Str("path", path).Msg("failed to upsert folder")
	}
}

func (w *Watcher) catalogPaths() ([]string, error) {
	return db.ListAllFilePaths(nil)
}
