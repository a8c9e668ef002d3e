package fs

import (
	"time"

	"github.com/mnemo-app/mnemo/log"
)

var logger = log.GetLogger("fs")

// EventType classifies a filesystem event after debouncing
type EventType int

const (
	EventCreate EventType = iota
	EventWrite
	EventDelete
)

// String returns the string representation of an EventType
func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventWrite:
		return "write"
	case EventDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Default debounce delay for coalescing rapid filesystem events.
// 150ms balances responsiveness against duplicate processing.
const DefaultDebounceDelay = 150 * time.Millisecond

// Default TTL for correlating RENAME events with the CREATE that follows
// when a file is moved.
const DefaultMoveTTL = 500 * time.Millisecond

// FileChangeEvent notifies subscribers about a catalog change
type FileChangeEvent struct {
	FilePath       string
	IsNew          bool
	ContentChanged bool   // hash differs from the previous record
	Trigger        string // "fsnotify" or "scan"
}

// ShouldInvalidateDigests reports whether existing digest output for the
// file is stale and must be recomputed from scratch
func (e FileChangeEvent) ShouldInvalidateDigests() bool {
	return e.ContentChanged && !e.IsNew
}

// FileChangeHandler receives change events from the watcher and scanner
type FileChangeHandler func(event FileChangeEvent)

// MetadataResult holds computed file metadata
type MetadataResult struct {
	Hash        string  // SHA-256 hex
	TextPreview *string // first lines of text files
	Size        int64
}
