package search

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mnemo-app/mnemo/db"
	"github.com/mnemo-app/mnemo/digest"
	"github.com/mnemo-app/mnemo/log"
	"github.com/mnemo-app/mnemo/vendors"
)

var logger = log.GetLogger("search")

// HandleKeywordIndex pushes a file's keyword document to Meilisearch. It
// is registered as the handler for search-keyword-index tasks.
func HandleKeywordIndex(_ context.Context, payload string) error {
	var p digest.IndexTaskPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return fmt.Errorf("invalid keyword index payload: %w", err)
	}

	doc, err := db.GetMeiliDocumentByPath(p.FilePath)
	if err != nil {
		return err
	}
	if doc == nil {
		// Document deleted between enqueue and processing
		logger.Debug().Str("path", p.FilePath).Msg("no keyword document, skipping")
		return nil
	}
	if doc.MeiliStatus == db.MeiliStatusIndexed {
		return nil
	}

	meili := vendors.GetMeili()
	if meili == nil {
		return fmt.Errorf("Meilisearch not configured")
	}

	meiliDoc := map[string]interface{}{
		"documentId": doc.DocumentID,
		"filePath":   doc.FilePath,
		"content":    doc.Content,
		"wordCount":  doc.WordCount,
	}
	if doc.Summary != nil {
		meiliDoc["summary"] = *doc.Summary
	}
	if doc.Tags != nil {
		meiliDoc["tags"] = *doc.Tags
	}
	if doc.MimeType != nil {
		meiliDoc["mimeType"] = *doc.MimeType
	}

	if err := meili.IndexDocument(meiliDoc); err != nil {
		if merr := db.MarkMeiliFailed(p.FilePath, err.Error()); merr != nil {
			logger.Error().Err(merr).Str("path", p.FilePath).Msg("failed to record index failure")
		}
		return err
	}

	if err := db.MarkMeiliIndexed(p.FilePath); err != nil {
		return err
	}

	logger.Info().Str("path", p.FilePath).Msg("keyword document indexed")
	return nil
}
