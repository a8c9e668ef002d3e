package search

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/mnemo-app/mnemo/db"
	"github.com/mnemo-app/mnemo/digest"
	"github.com/mnemo-app/mnemo/vendors"
)

// embedBatchSize bounds how many chunks go to the embedding API at once
const embedBatchSize = 32

// HandleSemanticIndex embeds a file's pending chunks and pushes them to
// Qdrant. It is registered as the handler for search-semantic-index tasks.
func HandleSemanticIndex(ctx context.Context, payload string) error {
	var p digest.IndexTaskPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return fmt.Errorf("invalid semantic index payload: %w", err)
	}

	chunks, err := db.GetQdrantChunksForFile(p.FilePath)
	if err != nil {
		return err
	}

	var pending []*db.QdrantDocument
	for _, c := range chunks {
		if c.EmbeddingStatus != db.EmbeddingStatusIndexed {
			pending = append(pending, c)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	openai := vendors.GetOpenAI()
	if openai == nil {
		return fmt.Errorf("OpenAI not configured")
	}
	qdrant := vendors.GetQdrant()
	if qdrant == nil {
		return fmt.Errorf("Qdrant not configured")
	}

	for start := 0; start < len(pending); start += embedBatchSize {
		end := min(start+embedBatchSize, len(pending))
		batch := pending[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.ChunkText
		}

		vectors, err := openai.Embed(ctx, texts)
		if err != nil {
			if merr := db.MarkQdrantFailed(p.FilePath, err.Error()); merr != nil {
				logger.Error().Err(merr).Str("path", p.FilePath).Msg("failed to record embed failure")
			}
			return err
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embedding count mismatch: got %d for %d chunks", len(vectors), len(batch))
		}

		for i, c := range batch {
			pointID := pointIDFor(c)
			err := qdrant.Upsert(ctx, pointID, vectors[i], map[string]interface{}{
				"filePath":   c.FilePath,
				"text":       c.ChunkText,
				"sourceType": c.SourceType,
				"chunkIndex": c.ChunkIndex,
			})
			if err != nil {
				if merr := db.MarkQdrantFailed(p.FilePath, err.Error()); merr != nil {
					logger.Error().Err(merr).Str("path", p.FilePath).Msg("failed to record upsert failure")
				}
				return err
			}
		}
	}

	if err := db.MarkQdrantIndexed(p.FilePath); err != nil {
		return err
	}

	logger.Info().Str("path", p.FilePath).Int("chunks", len(pending)).Msg("semantic chunks indexed")
	return nil
}

// pointIDFor derives a stable UUID for a chunk so re-indexing overwrites
// the old point instead of accumulating duplicates
func pointIDFor(c *db.QdrantDocument) string {
	name := fmt.Sprintf("%s:%s:%d", c.FilePath, c.SourceType, c.ChunkIndex)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}
