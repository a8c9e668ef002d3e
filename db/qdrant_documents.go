package db

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Embedding status values
const (
	EmbeddingStatusPending = "pending"
	EmbeddingStatusIndexed = "indexed"
	EmbeddingStatusFailed  = "failed"
)

// QdrantDocument is one semantic-search chunk of a file
type QdrantDocument struct {
	DocumentID      string  `json:"documentId"`
	FilePath        string  `json:"filePath"`
	SourceType      string  `json:"sourceType"`
	ChunkIndex      int     `json:"chunkIndex"`
	ChunkCount      int     `json:"chunkCount"`
	ChunkText       string  `json:"chunkText"`
	SpanStart       int     `json:"spanStart"`
	SpanEnd         int     `json:"spanEnd"`
	OverlapTokens   int     `json:"overlapTokens"`
	WordCount       int     `json:"wordCount"`
	TokenCount      int     `json:"tokenCount"`
	ContentHash     string  `json:"contentHash"`
	EmbeddingStatus string  `json:"embeddingStatus"`
	QdrantError     *string `json:"qdrantError,omitempty"`
	QdrantIndexedAt *int64  `json:"qdrantIndexedAt,omitempty"`
	CreatedAt       int64   `json:"createdAt"`
	UpdatedAt       int64   `json:"updatedAt"`
}

// GetQdrantChunksForFile returns the chunk rows for a file in chunk order
func GetQdrantChunksForFile(filePath string) ([]*QdrantDocument, error) {
	rows, err := GetDB().Query(`
		SELECT document_id, file_path, source_type, chunk_index, chunk_count,
		       chunk_text, span_start, span_end, overlap_tokens, word_count,
		       token_count, content_hash, embedding_status, qdrant_error,
		       qdrant_indexed_at, created_at, updated_at
		FROM qdrant_documents WHERE file_path = ? ORDER BY chunk_index
	`, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list qdrant chunks for %s: %w", filePath, err)
	}
	defer rows.Close()

	var chunks []*QdrantDocument
	for rows.Next() {
		var d QdrantDocument
		var qdrantError sql.NullString
		var indexedAt sql.NullInt64
		err := rows.Scan(
			&d.DocumentID, &d.FilePath, &d.SourceType, &d.ChunkIndex, &d.ChunkCount,
			&d.ChunkText, &d.SpanStart, &d.SpanEnd, &d.OverlapTokens, &d.WordCount,
			&d.TokenCount, &d.ContentHash, &d.EmbeddingStatus, &qdrantError,
			&indexedAt, &d.CreatedAt, &d.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan qdrant chunk: %w", err)
		}
		d.QdrantError = StringPtr(qdrantError)
		d.QdrantIndexedAt = IntPtr(indexedAt)
		chunks = append(chunks, &d)
	}
	return chunks, rows.Err()
}

// ReplaceQdrantChunks swaps out every chunk row for a file in one
// transaction. New rows start as pending.
func ReplaceQdrantChunks(filePath string, chunks []*QdrantDocument) error {
	return Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM qdrant_documents WHERE file_path = ?", filePath); err != nil {
			return fmt.Errorf("failed to clear qdrant chunks: %w", err)
		}

		now := NowMs()
		for _, c := range chunks {
			if c.DocumentID == "" {
				c.DocumentID = uuid.NewString()
			}
			_, err := tx.Exec(`
				INSERT INTO qdrant_documents (document_id, file_path, source_type,
					chunk_index, chunk_count, chunk_text, span_start, span_end,
					overlap_tokens, word_count, token_count, content_hash,
					embedding_status, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`,
				c.DocumentID, filePath, c.SourceType,
				c.ChunkIndex, c.ChunkCount, c.ChunkText, c.SpanStart, c.SpanEnd,
				c.OverlapTokens, c.WordCount, c.TokenCount, c.ContentHash,
				EmbeddingStatusPending, now, now,
			)
			if err != nil {
				return fmt.Errorf("failed to insert qdrant chunk %d: %w", c.ChunkIndex, err)
			}
		}
		return nil
	})
}

// MarkQdrantIndexed records a successful embedding push for a file's chunks
func MarkQdrantIndexed(filePath string) error {
	now := NowMs()
	_, err := GetDB().Exec(`
		UPDATE qdrant_documents SET embedding_status = ?, qdrant_error = NULL,
		       qdrant_indexed_at = ?, updated_at = ?
		WHERE file_path = ?
	`, EmbeddingStatusIndexed, now, now, filePath)
	if err != nil {
		return fmt.Errorf("failed to mark qdrant indexed for %s: %w", filePath, err)
	}
	return nil
}

// MarkQdrantFailed records an embedding push failure for a file's chunks
func MarkQdrantFailed(filePath, errMsg string) error {
	_, err := GetDB().Exec(`
		UPDATE qdrant_documents SET embedding_status = ?, qdrant_error = ?, updated_at = ?
		WHERE file_path = ?
	`, EmbeddingStatusFailed, errMsg, NowMs(), filePath)
	if err != nil {
		return fmt.Errorf("failed to mark qdrant failed for %s: %w", filePath, err)
	}
	return nil
}

// DeleteQdrantChunks removes every chunk row for a file
func DeleteQdrantChunks(filePath string) error {
	_, err := GetDB().Exec("DELETE FROM qdrant_documents WHERE file_path = ?", filePath)
	if err != nil {
		return fmt.Errorf("failed to delete qdrant chunks for %s: %w", filePath, err)
	}
	return nil
}
