package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mnemo-app/mnemo/db"
	"github.com/mnemo-app/mnemo/digest"
)

// GetDigesters handles GET /api/digest/digesters
func (h *Handlers) GetDigesters(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"digesters": h.registry.DescribeAll(),
	})
}

// GetDigestStats handles GET /api/digest/stats
func (h *Handlers) GetDigestStats(c *gin.Context) {
	stats, err := db.GetDigestStats()
	if err != nil {
		logger.Error().Err(err).Msg("failed to get digest stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get digest stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetDigestsForFile handles GET /api/digest/file/*path
func (h *Handlers) GetDigestsForFile(c *gin.Context) {
	path := strings.TrimPrefix(c.Param("path"), "/")
	if path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Path is required"})
		return
	}

	digests, err := db.ListDigestsForFile(path)
	if err != nil {
		logger.Error().Err(err).Str("path", path).Msg("failed to list digests")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get digests"})
		return
	}

	// Roll the rows up into one file-level status
	status := "done"
	for _, d := range digests {
		if d.Status == db.DigestStatusInProgress {
			status = "processing"
			break
		}
		if d.Status == db.DigestStatusTodo || d.Status == db.DigestStatusFailed {
			status = "pending"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"path":    path,
		"status":  status,
		"digests": digests,
	})
}

// TriggerDigest handles POST /api/digest/file/*path. With a digester name
// in the body only that row is reset; otherwise the whole file is
// invalidated and reprocessed.
func (h *Handlers) TriggerDigest(c *gin.Context) {
	path := strings.TrimPrefix(c.Param("path"), "/")
	if path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Path is required"})
		return
	}

	file, err := db.GetFileByPath(path)
	if err != nil || file == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}

	var body struct {
		Digester string `json:"digester"`
	}
	c.ShouldBindJSON(&body)
	digester := body.Digester
	if digester == "" {
		digester = c.Query("digester")
	}

	if digester != "" {
		if _, err := h.store.CreateDigestIfMissing(path, digester); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create digest row"})
			return
		}
		// Targeted reset drops the row's output and artifacts, nothing else
		if err := h.coordinator.ResetDigest(path, digester); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset digest row"})
			return
		}
		h.supervisor.Notify(path, false)
	} else {
		// Full reset drops all output and starts over
		h.supervisor.Notify(path, true)
	}

	if _, _, err := digest.EnsureDigestRows(h.store, h.registry, path); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("failed to ensure digest rows")
	}

	logger.Info().Str("path", path).Str("digester", digester).Msg("digest processing triggered")
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"path":    path,
	})
}

// GetDigestBlob handles GET /api/digest/blob/:id, serving binary digest
// output like screenshots
func (h *Handlers) GetDigestBlob(c *gin.Context) {
	id := c.Param("id")

	row, err := db.GetDigestByID(id)
	if err != nil {
		logger.Error().Err(err).Str("id", id).Msg("failed to load digest")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load digest"})
		return
	}
	if row == nil || row.SqlarName == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No blob for this digest"})
		return
	}

	data, err := db.GetBlob(*row.SqlarName)
	if err != nil {
		logger.Error().Err(err).Str("name", *row.SqlarName).Msg("failed to load blob")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load blob"})
		return
	}
	if data == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Blob not found"})
		return
	}

	c.Data(http.StatusOK, blobContentType(*row.SqlarName), data)
}

func blobContentType(name string) string {
	switch {
	case strings.HasSuffix(name, ".png"):
		return "image/png"
	case strings.HasSuffix(name, ".jpg"), strings.HasSuffix(name, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(name, ".json"):
		return "application/json"
	case strings.HasSuffix(name, ".md"), strings.HasSuffix(name, ".txt"):
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
