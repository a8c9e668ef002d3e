package fs

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

// moveDetector correlates RENAME events with the CREATE that follows when
// a file is moved inside the watched tree. fsnotify reports a move as a
// RENAME at the old path and a CREATE at the new one; pairing them lets
// the catalog keep digest rows and blobs attached to the file.
type moveDetector struct {
	mu            sync.Mutex
	recentRenames map[string]renameInfo
	ttl           time.Duration
	dataRoot      string
}

type renameInfo struct {
	timestamp time.Time
	baseName  string
	size      int64 // 0 when unknown
}

func newMoveDetector(ttl time.Duration, dataRoot string) *moveDetector {
	return &moveDetector{
		recentRenames: make(map[string]renameInfo),
		ttl:           ttl,
		dataRoot:      dataRoot,
	}
}

// TrackRename records a RENAME at oldPath for later correlation
func (m *moveDetector) TrackRename(oldPath string, size int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for path, info := range m.recentRenames {
		if now.Sub(info.timestamp) > m.ttl {
			delete(m.recentRenames, path)
		}
	}

	m.recentRenames[oldPath] = renameInfo{
		timestamp: now,
		baseName:  filepath.Base(oldPath),
		size:      size,
	}
}

// CheckMove reports whether a CREATE at newPath completes a recent rename.
// Matching requires the same base name, prefers the most recent rename,
// and rejects candidates whose recorded size differs from the new file.
func (m *moveDetector) CheckMove(newPath string) (oldPath string, isMove bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	newBase := filepath.Base(newPath)
	now := time.Now()

	var newSize int64
	if m.dataRoot != "" {
		if info, err := os.Stat(filepath.Join(m.dataRoot, newPath)); err == nil {
			newSize = info.Size()
		}
	}

	var best string
	var bestTime time.Time
	for old, info := range m.recentRenames {
		if now.Sub(info.timestamp) > m.ttl {
			delete(m.recentRenames, old)
			continue
		}
		if info.baseName != newBase {
			continue
		}
		if info.size > 0 && newSize > 0 && info.size != newSize {
			continue
		}
		if best == "" || info.timestamp.After(bestTime) {
			best = old
			bestTime = info.timestamp
		}
	}

	if best != "" {
		delete(m.recentRenames, best)
		return best, true
	}
	return "", false
}

// PendingCount returns the number of tracked renames (for testing)
func (m *moveDetector) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recentRenames)
}
