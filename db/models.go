package db

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"time"
)

// FileRecord represents a file in the database
type FileRecord struct {
	Path            string  `json:"path"`
	Name            string  `json:"name"`
	IsFolder        bool    `json:"isFolder"`
	Size            *int64  `json:"size,omitempty"`
	MimeType        *string `json:"mimeType,omitempty"`
	Hash            *string `json:"hash,omitempty"`
	ModifiedAt      int64   `json:"modifiedAt"`
	CreatedAt       int64   `json:"createdAt"`
	LastScannedAt   *int64  `json:"lastScannedAt,omitempty"`
	TextPreview     *string `json:"textPreview,omitempty"`
	ScreenshotSqlar *string `json:"screenshotSqlar,omitempty"`
}

// Digest represents a digest record
type Digest struct {
	ID        string  `json:"id"`
	FilePath  string  `json:"filePath"`
	Digester  string  `json:"digester"`
	Status    string  `json:"status"`
	Content   *string `json:"content,omitempty"`
	SqlarName *string `json:"sqlarName,omitempty"`
	Error     *string `json:"error,omitempty"`
	Attempts  int     `json:"attempts"`
	CreatedAt int64   `json:"createdAt"`
	UpdatedAt int64   `json:"updatedAt"`
}

// Digest status values
const (
	DigestStatusTodo       = "todo"
	DigestStatusInProgress = "in-progress"
	DigestStatusCompleted  = "completed"
	DigestStatusFailed     = "failed"
	DigestStatusSkipped    = "skipped"
)

// NowMs returns the current time as Unix milliseconds
func NowMs() int64 {
	return time.Now().UnixMilli()
}

// GeneratePathHash creates a short stable hash from a file path, used as
// the first segment of sqlar keys
func GeneratePathHash(path string) string {
	h := sha256.Sum256([]byte(path))
	return hex.EncodeToString(h[:8]) // First 16 hex chars (8 bytes)
}

// NullString converts *string to sql.NullString
func NullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// StringPtr converts sql.NullString to *string
func StringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

// IntPtr converts sql.NullInt64 to *int64
func IntPtr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	return &ni.Int64
}
