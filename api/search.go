package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mnemo-app/mnemo/vendors"
)

// Search handles GET /api/search. mode=keyword (default) queries
// Meilisearch; mode=semantic embeds the query and searches Qdrant.
func (h *Handlers) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter q is required"})
		return
	}

	limit := 20
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 && v <= 100 {
		limit = v
	}
	offset := 0
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v >= 0 {
		offset = v
	}

	switch c.DefaultQuery("mode", "keyword") {
	case "semantic":
		h.semanticSearch(c, query, limit)
	case "keyword":
		h.keywordSearch(c, query, limit, offset)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be keyword or semantic"})
	}
}

func (h *Handlers) keywordSearch(c *gin.Context, query string, limit, offset int) {
	meili := vendors.GetMeili()
	if meili == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Keyword search is not configured"})
		return
	}

	result, err := meili.Search(query, vendors.MeiliSearchOptions{
		Limit:      limit,
		Offset:     offset,
		TypeFilter: c.Query("type"),
		PathFilter: c.Query("path"),
	})
	if err != nil {
		logger.Error().Err(err).Str("query", query).Msg("keyword search failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Search failed"})
		return
	}

	hits := make([]gin.H, 0, len(result.Hits))
	for _, hit := range result.Hits {
		hits = append(hits, gin.H{
			"documentId": hit.DocumentID,
			"filePath":   hit.FilePath,
			"mimeType":   hit.MimeType,
			"summary":    hit.Summary,
			"tags":       hit.Tags,
			"formatted":  hit.Formatted,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"mode":    "keyword",
		"query":   query,
		"total":   result.EstimatedTotalHits,
		"limit":   result.Limit,
		"offset":  result.Offset,
		"results": hits,
	})
}

func (h *Handlers) semanticSearch(c *gin.Context, query string, limit int) {
	openai := vendors.GetOpenAI()
	if openai == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Semantic search is not configured"})
		return
	}
	qdrant := vendors.GetQdrant()
	if qdrant == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Semantic search is not configured"})
		return
	}

	vectors, err := openai.Embed(c.Request.Context(), []string{query})
	if err != nil || len(vectors) == 0 {
		logger.Error().Err(err).Str("query", query).Msg("failed to embed query")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Search failed"})
		return
	}

	results, err := qdrant.Search(c.Request.Context(), vectors[0], vendors.QdrantSearchOptions{
		Limit:          limit,
		ScoreThreshold: 0.3,
		PathFilter:     c.Query("path"),
	})
	if err != nil {
		logger.Error().Err(err).Str("query", query).Msg("semantic search failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Search failed"})
		return
	}

	hits := make([]gin.H, 0, len(results))
	for _, r := range results {
		hits = append(hits, gin.H{
			"filePath":   r.FilePath,
			"text":       r.Text,
			"sourceType": r.SourceType,
			"score":      r.Score,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"mode":    "semantic",
		"query":   query,
		"results": hits,
	})
}
