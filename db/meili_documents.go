package db

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Meili index status values
const (
	MeiliStatusPending = "pending"
	MeiliStatusIndexed = "indexed"
	MeiliStatusFailed  = "failed"
)

// MeiliDocument is the keyword-search document for a file
type MeiliDocument struct {
	DocumentID     string  `json:"documentId"`
	FilePath       string  `json:"filePath"`
	Content        string  `json:"content"`
	Summary        *string `json:"summary,omitempty"`
	Tags           *string `json:"tags,omitempty"`
	ContentHash    string  `json:"contentHash"`
	WordCount      int     `json:"wordCount"`
	MimeType       *string `json:"mimeType,omitempty"`
	MeiliStatus    string  `json:"meiliStatus"`
	MeiliError     *string `json:"meiliError,omitempty"`
	MeiliIndexedAt *int64  `json:"meiliIndexedAt,omitempty"`
	CreatedAt      int64   `json:"createdAt"`
	UpdatedAt      int64   `json:"updatedAt"`
}

// GetMeiliDocumentByPath returns the document row for a file, or nil
func GetMeiliDocumentByPath(filePath string) (*MeiliDocument, error) {
	row := GetDB().QueryRow(`
		SELECT document_id, file_path, content, summary, tags, content_hash,
		       word_count, mime_type, meili_status, meili_error, meili_indexed_at,
		       created_at, updated_at
		FROM meili_documents WHERE file_path = ?
	`, filePath)

	var d MeiliDocument
	var summary, tags, mimeType, meiliError sql.NullString
	var indexedAt sql.NullInt64
	err := row.Scan(
		&d.DocumentID, &d.FilePath, &d.Content, &summary, &tags, &d.ContentHash,
		&d.WordCount, &mimeType, &d.MeiliStatus, &meiliError, &indexedAt,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan meili document: %w", err)
	}

	d.Summary = StringPtr(summary)
	d.Tags = StringPtr(tags)
	d.MimeType = StringPtr(mimeType)
	d.MeiliError = StringPtr(meiliError)
	d.MeiliIndexedAt = IntPtr(indexedAt)
	return &d, nil
}

// UpsertMeiliDocument writes the document for a file and resets its index
// status to pending when the content changed
func UpsertMeiliDocument(d *MeiliDocument) error {
	if d.DocumentID == "" {
		d.DocumentID = uuid.NewString()
	}
	now := NowMs()

	_, err := GetDB().Exec(`
		INSERT INTO meili_documents (document_id, file_path, content, summary, tags,
		                             content_hash, word_count, mime_type, meili_status,
		                             created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET
			content = excluded.content,
			summary = excluded.summary,
			tags = excluded.tags,
			content_hash = excluded.content_hash,
			word_count = excluded.word_count,
			mime_type = excluded.mime_type,
			meili_status = excluded.meili_status,
			meili_error = NULL,
			updated_at = excluded.updated_at
	`,
		d.DocumentID, d.FilePath, d.Content, NullString(d.Summary), NullString(d.Tags),
		d.ContentHash, d.WordCount, NullString(d.MimeType), MeiliStatusPending,
		now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert meili document for %s: %w", d.FilePath, err)
	}
	return nil
}

// MarkMeiliIndexed records a successful index push
func MarkMeiliIndexed(filePath string) error {
	now := NowMs()
	_, err := GetDB().Exec(`
		UPDATE meili_documents SET meili_status = ?, meili_error = NULL,
		       meili_indexed_at = ?, updated_at = ?
		WHERE file_path = ?
	`, MeiliStatusIndexed, now, now, filePath)
	if err != nil {
		return fmt.Errorf("failed to mark meili indexed for %s: %w", filePath, err)
	}
	return nil
}

// MarkMeiliFailed records an index push failure
func MarkMeiliFailed(filePath, errMsg string) error {
	_, err := GetDB().Exec(`
		UPDATE meili_documents SET meili_status = ?, meili_error = ?, updated_at = ?
		WHERE file_path = ?
	`, MeiliStatusFailed, errMsg, NowMs(), filePath)
	if err != nil {
		return fmt.Errorf("failed to mark meili failed for %s: %w", filePath, err)
	}
	return nil
}

// DeleteMeiliDocument removes the document row for a file
func DeleteMeiliDocument(filePath string) error {
	_, err := GetDB().Exec("DELETE FROM meili_documents WHERE file_path = ?", filePath)
	if err != nil {
		return fmt.Errorf("failed to delete meili document for %s: %w", filePath, err)
	}
	return nil
}
