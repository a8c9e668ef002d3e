package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mnemo-app/mnemo/db"
)

// GetFile handles GET /api/files/*path, returning the catalog record and
// its digest rows
func (h *Handlers) GetFile(c *gin.Context) {
	path := strings.TrimPrefix(c.Param("path"), "/")
	if path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Path is required"})
		return
	}

	file, err := db.GetFileByPath(path)
	if err != nil {
		logger.Error().Err(err).Str("path", path).Msg("failed to load file")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load file"})
		return
	}
	if file == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}

	digests, err := db.ListDigestsForFile(path)
	if err != nil {
		logger.Error().Err(err).Str("path", path).Msg("failed to list digests")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load digests"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"file":    file,
		"digests": digests,
	})
}
